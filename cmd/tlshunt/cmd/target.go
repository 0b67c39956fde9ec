/*
Copyright © 2023-2026 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/apex/log"
	"github.com/spf13/viper"

	fridabackend "github.com/blacktop/tlshunt/pkg/backend/frida"
	"github.com/blacktop/tlshunt/pkg/scanner"
)

// deviceOptions builds the device half of the frida options from the
// persistent flags, prompting when more than one device is reachable and
// none was pinned.
func deviceOptions() (*fridabackend.Options, error) {
	opts := &fridabackend.Options{
		DeviceID: viper.GetString("udid"),
		Remote:   viper.GetString("remote"),
		USB:      viper.GetBool("usb"),
	}
	if opts.DeviceID != "" || opts.Remote != "" || opts.USB {
		return opts, nil
	}

	devices, err := fridabackend.Devices()
	if err != nil {
		return nil, err
	}
	if len(devices) <= 1 {
		return opts, nil // local device
	}

	var choices []string
	for _, d := range devices {
		choices = append(choices, fmt.Sprintf("[%-6s] %s (%s)", d.Type, d.Name, d.ID))
	}
	var selected int
	prompt := &survey.Select{
		Message: "Select what device to connect to:",
		Options: choices,
	}
	if err := survey.AskOne(prompt, &selected); err == terminal.InterruptErr {
		log.Warn("Exiting...")
		os.Exit(0)
	}
	opts.DeviceID = devices[selected].ID
	return opts, nil
}

// targetOptions validates and merges the process-selection flags under the
// given viper prefix (<prefix>.name, .pid, .spawn, .args) into opts.
func targetOptions(opts *fridabackend.Options, prefix string) error {
	opts.ProcessName = viper.GetString(prefix + ".name")
	opts.PID = viper.GetInt(prefix + ".pid")
	opts.Spawn = viper.GetString(prefix + ".spawn")
	opts.SpawnArgs = viper.GetStringSlice(prefix + ".args")

	if opts.PID == -1 && opts.ProcessName == "" && opts.Spawn == "" {
		return fmt.Errorf("must specify --name, --pid or --spawn")
	} else if opts.Spawn != "" && (opts.PID != -1 || opts.ProcessName != "") {
		return errors.New("cannot specify --spawn process AND --name OR --pid")
	} else if opts.PID != -1 && opts.ProcessName != "" {
		return errors.New("cannot specify both --name AND --pid")
	}
	return nil
}

// loadCatalog returns the signature catalog, merged with a user overlay when
// one is configured.
func loadCatalog(overlayPath string) (*scanner.Catalog, error) {
	cat := scanner.Default()
	if overlayPath == "" {
		return cat, nil
	}
	merged, err := cat.LoadOverlay(overlayPath)
	if err != nil {
		return nil, err
	}
	log.Infof("Loaded signature overlay: %s", overlayPath)
	return merged, nil
}
