// Package manifest handles orca.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"
)

// FileName is the manifest file looked up in a project directory.
const FileName = "orca.toml"

// Build output formats.
const (
	FormatText  = "text"
	FormatImage = "image"
)

// Defaults applied by Load and Default.
const (
	DefaultEntry    = "main.orca"
	DefaultMaxStack = 20480
	DefaultAddr     = "localhost:4620"
)

// Manifest represents an orca.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Source  Source      `toml:"source"`
	VM      VMConfig    `toml:"vm"`
	Build   BuildConfig `toml:"build"`
	Server  Server      `toml:"server"`

	// Dir is the directory containing the orca.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures the program entry file.
type Source struct {
	Entry string `toml:"entry"`
}

// VMConfig configures the machine.
type VMConfig struct {
	MaxStack int  `toml:"max-stack"`
	Trace    bool `toml:"trace"`
}

// BuildConfig configures build output.
type BuildConfig struct {
	Output string `toml:"output"`
	Format string `toml:"format"`
	Cache  string `toml:"cache"` // SQLite program cache, empty to disable
}

// Server configures the toolchain service.
type Server struct {
	Addr string `toml:"addr"`
}

// Default returns the configuration used when no orca.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses an orca.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest: cannot resolve path %s: %w", dir, err)
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find an orca.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) applyDefaults() {
	if m.Source.Entry == "" {
		m.Source.Entry = DefaultEntry
	}
	if m.VM.MaxStack == 0 {
		m.VM.MaxStack = DefaultMaxStack
	}
	if m.Build.Format == "" {
		m.Build.Format = FormatText
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
}

// Validate checks field values that toml decoding cannot.
func (m *Manifest) Validate() error {
	if m.VM.MaxStack < 0 {
		return fmt.Errorf("vm.max-stack must be positive, got %d", m.VM.MaxStack)
	}
	switch m.Build.Format {
	case FormatText, FormatImage:
	default:
		return fmt.Errorf("build.format must be %q or %q, got %q", FormatText, FormatImage, m.Build.Format)
	}
	return nil
}

// ApplyEnv overrides settings from ORCA_MAX_STACK, ORCA_SERVER_ADDR,
// ORCA_BUILD_FORMAT and ORCA_TRACE. The environment is read afresh on
// every call.
func (m *Manifest) ApplyEnv() error {
	env.Load()
	m.VM.MaxStack = env.Int("ORCA_MAX_STACK", m.VM.MaxStack)
	m.Server.Addr = env.Str("ORCA_SERVER_ADDR", m.Server.Addr)
	m.Build.Format = strings.ToLower(env.Str("ORCA_BUILD_FORMAT", m.Build.Format))
	if env.Has("ORCA_TRACE") {
		m.VM.Trace = env.Bool("ORCA_TRACE")
	}
	return m.Validate()
}

// EntryPath returns the absolute path of the entry source file.
func (m *Manifest) EntryPath() string {
	if filepath.IsAbs(m.Source.Entry) {
		return m.Source.Entry
	}
	return filepath.Join(m.Dir, m.Source.Entry)
}

// OutputPath returns the build output path. Without a configured output the
// entry file name is used with an extension matching the format.
func (m *Manifest) OutputPath() string {
	out := m.Build.Output
	if out == "" {
		base := strings.TrimSuffix(filepath.Base(m.Source.Entry), filepath.Ext(m.Source.Entry))
		ext := ".orcb"
		if m.Build.Format == FormatImage {
			ext = ".orci"
		}
		out = base + ext
	}
	if filepath.IsAbs(out) {
		return out
	}
	return filepath.Join(m.Dir, out)
}

// CachePath returns the absolute program cache path, or "" when caching is
// disabled.
func (m *Manifest) CachePath() string {
	if m.Build.Cache == "" || filepath.IsAbs(m.Build.Cache) {
		return m.Build.Cache
	}
	return filepath.Join(m.Dir, m.Build.Cache)
}
