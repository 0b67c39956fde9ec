// Package adb shells out to the Android debug bridge for the device-transport
// extraction paths (pulling library files and APKs off a device).
package adb

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/blacktop/tlshunt/internal/utils"
)

const (
	shellTimeout = 60 * time.Second
	pullTimeout  = 180 * time.Second
)

// Available reports whether adb is on PATH.
func Available() bool {
	_, err := exec.LookPath("adb")
	return err == nil
}

func run(timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "adb", args...).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), fmt.Errorf("adb %s timed out after %s", args[0], timeout)
	}
	if err != nil {
		return string(out), fmt.Errorf("adb %s failed: %v: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

func withSerial(serial string, args ...string) []string {
	if serial != "" {
		return append([]string{"-s", serial}, args...)
	}
	return args
}

// Pull copies a file off the device.
func Pull(remote, local, serial string) error {
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"remote": remote,
		"local":  local,
	}).Debug("adb pull")
	// device transports flake under load; one retry is usually enough
	return utils.Retry(2, time.Second, func() error {
		_, err := run(pullTimeout, withSerial(serial, "pull", remote, local)...)
		return err
	})
}

// Shell runs a command on the device and returns its combined output.
func Shell(command, serial string) (string, error) {
	return run(shellTimeout, withSerial(serial, "shell", command)...)
}

// PackageAPKPaths resolves the on-device APK paths of an installed package.
func PackageAPKPaths(pkg, serial string) ([]string, error) {
	out, err := Shell("pm path "+pkg, serial)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "package:"); ok {
			paths = append(paths, after)
		}
	}
	return paths, nil
}
