package cli

import (
	"os"
	"path/filepath"
)

// Paths locates the files of one app. Root is the app directory,
// ~/.pcmlink/<app> by default.
type Paths struct {
	Root string
}

// NewPaths returns the default layout for appName under the home directory.
func NewPaths(appName string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{Root: filepath.Join(home, DefaultBaseDir, appName)}, nil
}

// PathsFor returns the layout rooted next to cfg's file, so data follows a
// config given with --config.
func PathsFor(cfg *Config) *Paths {
	return &Paths{Root: cfg.Dir()}
}

// ConfigFile returns <root>/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.Root, DefaultConfigFile)
}

// DataDir returns <root>/data.
func (p *Paths) DataDir() string {
	return filepath.Join(p.Root, "data")
}

// HistoryDir returns the session history database directory.
func (p *Paths) HistoryDir() string {
	return p.DataPath("history")
}

// DataPath returns a path within the data directory.
func (p *Paths) DataPath(name string) string {
	return filepath.Join(p.DataDir(), name)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (p *Paths) EnsureDataDir() error {
	return os.MkdirAll(p.DataDir(), 0755)
}
