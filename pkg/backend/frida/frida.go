// Package frida implements the backend capability surface on top of a
// frida-go session and an embedded RPC agent. One Session wraps one attached
// (or spawned) process.
package frida

import (
	_ "embed"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/frida/frida-go/frida"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"

	"github.com/blacktop/tlshunt/internal/utils"
	"github.com/blacktop/tlshunt/pkg/backend"
)

//go:embed agent.js
var agentData []byte

// DeviceInfo is one frida-reachable device, for pickers and listings.
type DeviceInfo struct {
	ID   string
	Name string
	Type string
}

// Options selects a device and a target process.
type Options struct {
	// DeviceID pins a specific device (frida UDID). Empty means local,
	// unless Remote or USB is set.
	DeviceID string
	// Remote is a host[:port] of a remote frida-server to add and use.
	Remote string
	// USB picks the first USB device.
	USB bool

	// Exactly one of ProcessName, PID or Spawn selects the target.
	ProcessName string
	PID         int
	Spawn       string
	SpawnArgs   []string
}

// Session is an attached instrumentation session. It implements
// backend.Session.
type Session struct {
	dev      *frida.Device
	session  *frida.Session
	script   *frida.Script
	platform string
	pid      int
	spawned  bool
	detached bool
}

// Devices lists every device the local frida runtime can see.
func Devices() ([]DeviceInfo, error) {
	mgr := frida.NewDeviceManager()
	devices, err := mgr.EnumerateDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %v", err)
	}
	var out []DeviceInfo
	for _, d := range devices {
		out = append(out, DeviceInfo{
			ID:   d.ID(),
			Name: d.Name(),
			Type: strings.ToUpper(d.DeviceType().String()),
		})
	}
	return out, nil
}

func pickDevice(opts *Options) (*frida.Device, error) {
	mgr := frida.NewDeviceManager()
	switch {
	case opts.Remote != "":
		dev, err := mgr.AddRemoteDevice(opts.Remote, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to add remote device %s: %v", opts.Remote, err)
		}
		return dev, nil
	case opts.DeviceID != "":
		dev, err := mgr.DeviceByID(opts.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("failed to get device by id %s: %v", opts.DeviceID, err)
		}
		return dev, nil
	case opts.USB:
		dev, err := mgr.DeviceByType(frida.DeviceTypeUsb)
		if err != nil {
			return nil, fmt.Errorf("failed to get USB device: %v", err)
		}
		return dev, nil
	}
	dev, err := mgr.DeviceByType(frida.DeviceTypeLocal)
	if err != nil {
		return nil, fmt.Errorf("failed to get local device: %v", err)
	}
	return dev, nil
}

// Processes lists processes on the device named by opts, without attaching
// to anything.
func Processes(opts *Options) ([]backend.Process, error) {
	dev, err := pickDevice(opts)
	if err != nil {
		return nil, err
	}
	procs, err := dev.EnumerateProcesses(frida.ScopeMinimal)
	if err != nil {
		return nil, fmt.Errorf("error enumerating processes: %v", err)
	}
	var out []backend.Process
	for _, p := range procs {
		out = append(out, backend.Process{PID: p.PID(), Name: p.Name()})
	}
	return out, nil
}

// Attach connects to the device named by opts, attaches to (or spawns) the
// target process and loads the agent. The caller owns the returned session
// and must Detach it.
func Attach(opts *Options) (*Session, error) {
	dev, err := pickDevice(opts)
	if err != nil {
		return nil, err
	}

	log.Infof("Chosen device: %s", dev.Name())

	s := &Session{dev: dev, pid: opts.PID}

	if opts.Spawn != "" {
		log.Infof("Spawning process '%s'", opts.Spawn)
		spawnOpts := frida.NewSpawnOptions()
		argv := append([]string{opts.Spawn}, opts.SpawnArgs...)
		spawnOpts.SetArgv(argv)
		s.pid, err = dev.Spawn(opts.Spawn, spawnOpts)
		if err != nil {
			return nil, fmt.Errorf("error spawning '%s': %v", opts.Spawn, err)
		}
		s.spawned = true
	} else if opts.ProcessName != "" {
		processes, err := dev.EnumerateProcesses(frida.ScopeMinimal)
		if err != nil {
			return nil, fmt.Errorf("error enumerating processes: %v", err)
		}
		found := false
		log.Debugf("Searching process '%s'", opts.ProcessName)
		for _, proc := range processes {
			utils.Indent(log.WithFields(log.Fields{
				"pid":  proc.PID(),
				"name": proc.Name(),
			}).Debug, 2)("Process")
			if proc.Name() == opts.ProcessName {
				s.pid = proc.PID()
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("process '%s': %w", opts.ProcessName, backend.ErrNotFound)
		}
		log.WithFields(log.Fields{
			"name": opts.ProcessName,
			"pid":  s.pid,
		}).Info("Attaching to process")
	} else {
		log.Infof("Attaching to PID %d", s.pid)
	}

	s.session, err = dev.Attach(s.pid, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to attach to PID %d: %v", s.pid, err)
	}

	s.session.On("detached", func(reason frida.SessionDetachReason, crash *frida.Crash) {
		log.Warnf("session detached: reason='%s'", reason)
		if crash != nil {
			log.Errorf("session crash: %s %s", crash.Report(), crash.Summary())
		}
	})

	s.script, err = s.session.CreateScript(string(agentData))
	if err != nil {
		s.session.Detach()
		return nil, fmt.Errorf("error ocurred creating script: %v", err)
	}
	s.script.On("message", onMessage)
	if err := s.script.Load(); err != nil {
		s.session.Detach()
		return nil, fmt.Errorf("error loading script: %v", err)
	}

	if s.spawned {
		if err := dev.Resume(s.pid); err != nil {
			s.Detach()
			return nil, fmt.Errorf("error resuming: %v", err)
		}
		log.Info("Resumed process")
	}

	var info struct {
		Platform string `mapstructure:"platform"`
		Arch     string `mapstructure:"arch"`
		PID      int    `mapstructure:"pid"`
	}
	raw, err := s.call("info")
	if err != nil {
		s.Detach()
		return nil, fmt.Errorf("agent info call failed: %v", err)
	}
	if err := mapstructure.WeakDecode(raw, &info); err != nil {
		s.Detach()
		return nil, fmt.Errorf("error decoding agent info: %v", err)
	}
	s.platform = info.Platform

	log.WithFields(log.Fields{
		"platform": info.Platform,
		"arch":     info.Arch,
		"pid":      info.PID,
	}).Info("Agent loaded")

	return s, nil
}

// onMessage routes agent-side console output into the logger.
func onMessage(data string) {
	msg, err := frida.ScriptMessageToMessage(data)
	if err != nil {
		log.Errorf("error parsing script message: %v", err)
		return
	}
	switch msg.Type {
	case frida.MessageTypeError:
		log.WithFields(log.Fields{
			"line":   msg.LineNumber,
			"column": msg.ColumnNumber,
		}).Errorf("agent error: %v", msg.Description)
	case frida.MessageTypeLog:
		switch msg.Level {
		case frida.LevelTypeWarn:
			log.Warnf("agent: %v", msg.Payload)
		case frida.LevelTypeError:
			log.Errorf("agent: %v", msg.Payload)
		default:
			log.Debugf("agent: %v", msg.Payload)
		}
	default:
		log.Debugf("agent message: %v", msg.Payload)
	}
}

// call invokes one agent RPC export.
func (s *Session) call(fn string, args ...any) (any, error) {
	if s.detached {
		return nil, fmt.Errorf("session is detached")
	}
	ret := s.script.ExportsCall(fn, args...)
	if err, ok := ret.(error); ok {
		return nil, err
	}
	return ret, nil
}

func parseAddr(v string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(v, "0x"), 16, 64)
}

func hexAddr(address uint64) string { return fmt.Sprintf("%#x", address) }

// Platform reports the detected target OS: android, ios, linux, macos or
// windows.
func (s *Session) Platform() string { return s.platform }

// PID is the target process id (assigned by the device when spawning).
func (s *Session) PID() int { return s.pid }

// EnumerateProcesses lists processes on the device.
func (s *Session) EnumerateProcesses() ([]backend.Process, error) {
	procs, err := s.dev.EnumerateProcesses(frida.ScopeMinimal)
	if err != nil {
		return nil, fmt.Errorf("error enumerating processes: %v", err)
	}
	var out []backend.Process
	for _, p := range procs {
		out = append(out, backend.Process{PID: p.PID(), Name: p.Name()})
	}
	return out, nil
}

type moduleRow struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
	Base string `mapstructure:"base"`
	Size uint64 `mapstructure:"size"`
}

// EnumerateModules lists every loaded module of the attached process.
func (s *Session) EnumerateModules() ([]backend.Module, error) {
	raw, err := s.call("enumerateModules")
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate modules: %v", err)
	}
	var rows []moduleRow
	if err := mapstructure.WeakDecode(raw, &rows); err != nil {
		return nil, fmt.Errorf("error decoding modules: %v", err)
	}
	out := make([]backend.Module, 0, len(rows))
	for _, r := range rows {
		base, err := parseAddr(r.Base)
		if err != nil {
			return nil, fmt.Errorf("bad module base %q: %v", r.Base, err)
		}
		out = append(out, backend.Module{Name: r.Name, Path: r.Path, Base: base, Size: r.Size})
	}
	return out, nil
}

// FindModule resolves one module by name.
func (s *Session) FindModule(name string) (*backend.Module, error) {
	mods, err := s.EnumerateModules()
	if err != nil {
		return nil, err
	}
	for _, m := range mods {
		if m.Name == name {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("module %s: %w", name, backend.ErrNotFound)
}

// EnumerateReadableRanges lists all readable ranges of the target.
func (s *Session) EnumerateReadableRanges() ([]backend.MemoryRange, error) {
	raw, err := s.call("enumerateRanges")
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate ranges: %v", err)
	}
	var rows []struct {
		Base       string `mapstructure:"base"`
		Size       uint64 `mapstructure:"size"`
		Protection string `mapstructure:"protection"`
	}
	if err := mapstructure.WeakDecode(raw, &rows); err != nil {
		return nil, fmt.Errorf("error decoding ranges: %v", err)
	}
	out := make([]backend.MemoryRange, 0, len(rows))
	for _, r := range rows {
		base, err := parseAddr(r.Base)
		if err != nil {
			return nil, fmt.Errorf("bad range base %q: %v", r.Base, err)
		}
		out = append(out, backend.MemoryRange{Base: base, Size: r.Size, Protection: r.Protection})
	}
	return out, nil
}

func (s *Session) readRPC(fn string, address uint64, size int) ([]byte, error) {
	raw, err := s.call(fn, hexAddr(address), size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrUnreadable, err)
	}
	data, err := base64.StdEncoding.DecodeString(cast.ToString(raw))
	if err != nil {
		return nil, fmt.Errorf("bad payload encoding from agent: %v", err)
	}
	return data, nil
}

// ReadBytes reads with the fastest primitive only.
func (s *Session) ReadBytes(address uint64, size int) ([]byte, error) {
	return s.readRPC("readDirect", address, size)
}

// ReadMethods returns the read fallback chain: a plain read, an
// access-checked read, then a page-wise salvage read that zero-fills
// unreadable pages.
func (s *Session) ReadMethods() []backend.ReadMethod {
	return []backend.ReadMethod{
		{Name: "direct", Read: func(address uint64, size int) ([]byte, error) {
			return s.readRPC("readDirect", address, size)
		}},
		{Name: "checked", Read: func(address uint64, size int) ([]byte, error) {
			return s.readRPC("readChecked", address, size)
		}},
		{Name: "salvage", Read: func(address uint64, size int) ([]byte, error) {
			return s.readRPC("readPartial", address, size)
		}},
	}
}

// ScanPattern runs a masked hex pattern over [address, address+size).
func (s *Session) ScanPattern(address, size uint64, pattern string) ([]backend.PatternMatch, error) {
	raw, err := s.call("scanPattern", hexAddr(address), size, pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern scan failed: %v", err)
	}
	var rows []struct {
		Address string `mapstructure:"address"`
		Size    int    `mapstructure:"size"`
	}
	if err := mapstructure.WeakDecode(raw, &rows); err != nil {
		return nil, fmt.Errorf("error decoding matches: %v", err)
	}
	out := make([]backend.PatternMatch, 0, len(rows))
	for _, r := range rows {
		addr, err := parseAddr(r.Address)
		if err != nil {
			return nil, fmt.Errorf("bad match address %q: %v", r.Address, err)
		}
		out = append(out, backend.PatternMatch{Address: addr, Size: r.Size})
	}
	return out, nil
}

// EnumerateExports lists exported symbol names of a module.
func (s *Session) EnumerateExports(module string) ([]string, error) {
	raw, err := s.call("enumerateExports", module)
	if err != nil {
		if strings.Contains(err.Error(), "module not found") {
			return nil, fmt.Errorf("module %s: %w", module, backend.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to enumerate exports of %s: %v", module, err)
	}
	names := cast.ToStringSlice(raw)
	if len(names) == 0 {
		return nil, fmt.Errorf("module %s: %w", module, backend.ErrNoExports)
	}
	return names, nil
}

// OpenFile opens a file on the target for chunked reading.
func (s *Session) OpenFile(path string) (backend.FileHandle, error) {
	raw, err := s.call("fileOpen", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	return &fileHandle{session: s, handle: cast.ToInt(raw)}, nil
}

type fileHandle struct {
	session *Session
	handle  int
	closed  bool
}

func (f *fileHandle) ReadChunk(size int) ([]byte, error) {
	raw, err := f.session.call("fileRead", f.handle, size)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(cast.ToString(raw))
}

func (f *fileHandle) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	_, err := f.session.call("fileClose", f.handle)
	return err
}

// Detach unloads the agent and releases the session. Safe to call twice.
func (s *Session) Detach() error {
	if s.detached {
		return nil
	}
	s.detached = true
	if s.script != nil {
		if err := s.script.Unload(); err != nil {
			log.Debugf("error unloading script: %v", err)
		}
	}
	if s.session != nil {
		s.session.Detach()
	}
	return nil
}
