package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/blacktop/tlshunt/internal/adb"
	"github.com/blacktop/tlshunt/internal/platform"
	"github.com/blacktop/tlshunt/pkg/backend"
	"github.com/blacktop/tlshunt/pkg/transfer"
)

// diskCopy copies the module's backing file straight off the controller's
// filesystem. Fastest and byte-exact; only possible when the controller and
// target share a filesystem view.
func (c *Coordinator) diskCopy(mod backend.Module, outputPath string) Result {
	src, err := os.Open(mod.Path)
	if err != nil {
		return c.fail(mod, platform.MethodDiskCopy, err)
	}
	defer src.Close()

	dst, err := os.Create(outputPath)
	if err != nil {
		return c.fail(mod, platform.MethodDiskCopy, err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		removeIfEmpty(outputPath)
		return c.fail(mod, platform.MethodDiskCopy, errors.Wrapf(err, "copy of %s failed", mod.Path))
	}

	log.WithFields(log.Fields{
		"module": mod.Name,
		"size":   humanize.Bytes(uint64(n)),
	}).Info("Copied from disk")

	return Result{
		Module:     mod,
		OutputPath: outputPath,
		Bytes:      n,
		Method:     platform.MethodDiskCopy,
		Success:    true,
	}
}

// memoryDump streams the module's in-memory image through the chunk engine,
// using the backend's full read-method fallback chain per chunk. The output
// carries a .memdump suffix because an image dumped from memory is not the
// on-disk file (relocations applied, potentially holes).
func (c *Coordinator) memoryDump(mod backend.Module, outputPath string) Result {
	if !strings.HasSuffix(outputPath, ".memdump") {
		outputPath += ".memdump"
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return c.fail(mod, platform.MethodMemoryDump, err)
	}
	defer out.Close()

	src := &transfer.MemorySource{
		Name:    mod.Name,
		Base:    mod.Base,
		Length:  int64(mod.Size),
		Methods: c.Backend.ReadMethods(),
	}

	var progress func(int64)
	if c.Progress != nil {
		total := int64(mod.Size)
		progress = func(received int64) { c.Progress(received, total) }
	}

	n, err := transfer.Copy(out, c.engine(), src, progress)
	if err != nil {
		out.Close()
		removeIfEmpty(outputPath)
		res := c.fail(mod, platform.MethodMemoryDump, err)
		res.Bytes = n // partial byte count is still reported, not discarded
		return res
	}

	log.WithFields(log.Fields{
		"module": mod.Name,
		"size":   humanize.Bytes(uint64(n)),
	}).Info("Dumped from memory")

	return Result{
		Module:     mod,
		OutputPath: outputPath,
		Bytes:      n,
		Method:     platform.MethodMemoryDump,
		Success:    true,
	}
}

// remoteRead pulls the module's backing file through the backend's file
// handle (the iOS path, where the controller cannot see the device
// filesystem and adb does not exist).
func (c *Coordinator) remoteRead(mod backend.Module, outputPath string) Result {
	handle, err := c.Backend.OpenFile(mod.Path)
	if err != nil {
		return c.fail(mod, platform.MethodRemoteRead, errors.Wrapf(err, "failed to open %s on target", mod.Path))
	}
	defer handle.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return c.fail(mod, platform.MethodRemoteRead, err)
	}
	defer out.Close()

	var progress func(int64)
	if c.Progress != nil {
		progress = func(received int64) { c.Progress(received, -1) }
	}

	src := &transfer.FileSource{Name: mod.Name, Handle: handle}
	n, err := transfer.Copy(out, c.engine(), src, progress)
	if err != nil {
		out.Close()
		removeIfEmpty(outputPath)
		res := c.fail(mod, platform.MethodRemoteRead, err)
		res.Bytes = n
		return res
	}

	log.WithFields(log.Fields{
		"module": mod.Name,
		"size":   humanize.Bytes(uint64(n)),
	}).Info("Read from target")

	return Result{
		Module:     mod,
		OutputPath: outputPath,
		Bytes:      n,
		Method:     platform.MethodRemoteRead,
		Success:    true,
	}
}

// devicePull copies the backing file off an android device via adb.
func (c *Coordinator) devicePull(mod backend.Module, outputPath string) Result {
	if !adb.Available() {
		return c.fail(mod, platform.MethodDevicePull, fmt.Errorf("adb not found in PATH"))
	}
	if err := adb.Pull(mod.Path, outputPath, c.Serial); err != nil {
		return c.fail(mod, platform.MethodDevicePull, err)
	}
	info, err := os.Stat(outputPath)
	if err != nil {
		return c.fail(mod, platform.MethodDevicePull, errors.Wrap(err, "pull reported success but output is missing"))
	}

	log.WithFields(log.Fields{
		"module": mod.Name,
		"size":   humanize.Bytes(uint64(info.Size())),
	}).Info("Pulled from device")

	return Result{
		Module:     mod,
		OutputPath: outputPath,
		Bytes:      info.Size(),
		Method:     platform.MethodDevicePull,
		Success:    true,
	}
}

// packageInner extracts a library that is mapped directly out of an APK
// ("/path/base.apk!/lib/arm64-v8a/libfoo.so"): pull the APK, then carve the
// member out of the zip.
func (c *Coordinator) packageInner(mod backend.Module, outputPath string) Result {
	if !adb.Available() {
		return c.fail(mod, platform.MethodPackageInner, fmt.Errorf("adb not found in PATH"))
	}

	remoteAPK, inner, ok := strings.Cut(mod.Path, "!")
	if !ok {
		return c.fail(mod, platform.MethodPackageInner, fmt.Errorf("path %q has no package-inner separator", mod.Path))
	}
	inner = strings.TrimPrefix(inner, "/")

	tmpDir := filepath.Join(c.OutputDir, ".apks")
	localAPK := filepath.Join(tmpDir, filepath.Base(remoteAPK))
	if _, err := os.Stat(localAPK); err != nil {
		if err := adb.Pull(remoteAPK, localAPK, c.Serial); err != nil {
			// mapped APK paths go stale after app updates; re-resolve via pm
			localAPK, err = c.pullCurrentAPK(remoteAPK, tmpDir, err)
			if err != nil {
				return c.fail(mod, platform.MethodPackageInner, err)
			}
		}
	}

	n, err := extractZipMember(localAPK, inner, outputPath)
	if err != nil {
		return c.fail(mod, platform.MethodPackageInner, err)
	}

	log.WithFields(log.Fields{
		"module": mod.Name,
		"apk":    filepath.Base(remoteAPK),
		"size":   humanize.Bytes(uint64(n)),
	}).Info("Extracted from package")

	return Result{
		Module:     mod,
		OutputPath: outputPath,
		Bytes:      n,
		Method:     platform.MethodPackageInner,
		Success:    true,
	}
}

// pullCurrentAPK re-resolves the package's installed APK paths through pm and
// pulls the one whose basename matches the stale mapping. pullErr is returned
// unchanged when no PackageName is configured or nothing matches.
func (c *Coordinator) pullCurrentAPK(staleAPK, tmpDir string, pullErr error) (string, error) {
	if c.PackageName == "" {
		return "", pullErr
	}
	paths, err := adb.PackageAPKPaths(c.PackageName, c.Serial)
	if err != nil {
		return "", pullErr
	}
	want := filepath.Base(staleAPK)
	for _, p := range paths {
		if filepath.Base(p) != want {
			continue
		}
		log.WithFields(log.Fields{
			"stale":   staleAPK,
			"current": p,
		}).Debug("re-resolved APK path")
		localAPK := filepath.Join(tmpDir, want)
		if err := adb.Pull(p, localAPK, c.Serial); err != nil {
			return "", err
		}
		return localAPK, nil
	}
	return "", pullErr
}

// extractZipMember copies one member out of a zip. Exact path first, then a
// basename match (split APKs move libs around).
func extractZipMember(zipPath, member, outputPath string) (int64, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %s", zipPath)
	}
	defer r.Close()

	var found *zip.File
	for _, f := range r.File {
		if f.Name == member {
			found = f
			break
		}
	}
	if found == nil {
		base := "/" + filepath.Base(member)
		for _, f := range r.File {
			if strings.HasSuffix(f.Name, base) {
				found = f
				break
			}
		}
	}
	if found == nil {
		return 0, fmt.Errorf("%q: %w in package", member, backend.ErrNotFound)
	}

	src, err := found.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.Create(outputPath)
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	return io.Copy(dst, src)
}
