// Package manifest handles corvid.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("corvid.manifest")

// FileName is the manifest's file name.
const FileName = "corvid.toml"

var ErrInvalid = errors.New("invalid manifest")

// Manifest represents a corvid.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Runtime      Runtime               `toml:"runtime"`
	Trace        Trace                 `toml:"trace"`
	Policy       Policy                `toml:"policy"`
	Capabilities map[string]Capability `toml:"capabilities"`

	// Dir is the directory containing the corvid.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata and build inputs.
type Project struct {
	Name    string   `toml:"name"`
	Version string   `toml:"version"`
	Entry   string   `toml:"entry"`
	Sources []string `toml:"sources"`
	Output  string   `toml:"output"`
}

// Runtime holds machine options. Durations are TOML strings such as
// "500ms".
type Runtime struct {
	Profile           string   `toml:"profile"`
	Scheduling        string   `toml:"scheduling"`
	MaxDepth          int      `toml:"max-depth"`
	MaxSteps          int64    `toml:"max-steps"`
	CapabilityTimeout Duration `toml:"capability-timeout"`
}

// Trace configures the run store.
type Trace struct {
	Store string `toml:"store"`
	RunID string `toml:"run-id"`
}

// Policy lists capability ids the runtime may reach. An empty Allow list
// allows everything not denied.
type Policy struct {
	Allow []string `toml:"allow"`
	Deny  []string `toml:"deny"`
}

// Capability routes one tool alias to a remote tool host.
type Capability struct {
	Endpoint  string   `toml:"endpoint"`
	Transport string   `toml:"transport"`
	Timeout   Duration `toml:"timeout"`
}

// Duration is a time.Duration read from a TOML string.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Load parses a corvid.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: %s: unknown key %s", ErrInvalid, path, undecoded[0])
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Project.Sources) == 0 {
		m.Project.Sources = []string{"src"}
	}
	if m.Project.Entry == "" {
		m.Project.Entry = "main"
	}
	if m.Project.Output == "" && m.Project.Name != "" {
		m.Project.Output = m.Project.Name + ".cvb"
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a corvid.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the values Load cannot check by type alone.
func (m *Manifest) Validate() error {
	switch m.Runtime.Profile {
	case "", "default", "deterministic":
	default:
		return fmt.Errorf("%w: runtime.profile %q", ErrInvalid, m.Runtime.Profile)
	}
	switch m.Runtime.Scheduling {
	case "", "eager", "fifo":
	default:
		return fmt.Errorf("%w: runtime.scheduling %q", ErrInvalid, m.Runtime.Scheduling)
	}
	if m.Runtime.Profile == "deterministic" && m.Runtime.Scheduling == "eager" {
		return fmt.Errorf("%w: the deterministic profile needs fifo scheduling", ErrInvalid)
	}
	if m.Runtime.MaxDepth < 0 || m.Runtime.MaxSteps < 0 || m.Runtime.CapabilityTimeout.Duration < 0 {
		return fmt.Errorf("%w: runtime limits must not be negative", ErrInvalid)
	}
	for _, id := range append(append([]string(nil), m.Policy.Allow...), m.Policy.Deny...) {
		if !ValidCapabilityID(id) {
			return fmt.Errorf("%w: policy names malformed capability %q", ErrInvalid, id)
		}
	}
	for alias, c := range m.Capabilities {
		if !ValidAlias(alias) {
			return fmt.Errorf("%w: capability alias %q", ErrInvalid, alias)
		}
		if c.Endpoint == "" {
			return fmt.Errorf("%w: capabilities.%s has no endpoint", ErrInvalid, alias)
		}
		switch c.Transport {
		case "", "connect", "grpc":
		default:
			return fmt.Errorf("%w: capabilities.%s transport %q", ErrInvalid, alias, c.Transport)
		}
		if c.Timeout.Duration < 0 {
			return fmt.Errorf("%w: capabilities.%s timeout is negative", ErrInvalid, alias)
		}
	}
	return nil
}

// SourcePaths returns absolute paths for the configured sources.
func (m *Manifest) SourcePaths() []string {
	var paths []string
	for _, s := range m.Project.Sources {
		paths = append(paths, m.Path(s))
	}
	return paths
}

// Path resolves p against the manifest directory.
func (m *Manifest) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// OutputPath returns the absolute path of the build output.
func (m *Manifest) OutputPath() string {
	return m.Path(m.Project.Output)
}

// TraceStorePath returns the absolute path of the trace store, or "" when
// tracing to a store is off.
func (m *Manifest) TraceStorePath() string {
	return m.Path(m.Trace.Store)
}
