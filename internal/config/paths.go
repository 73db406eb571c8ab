package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".xmlbot"

// Paths holds resolved filesystem paths for xmlbot data.
type Paths struct {
	Base   string // ~/.xmlbot
	Config string // ~/.xmlbot/config.yaml
	Logs   string // ~/.xmlbot/logs
	Data   string // ~/.xmlbot/data
}

// ResolvePaths computes all standard paths from the home directory.
// If XMLBOT_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("XMLBOT_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Logs:   filepath.Join(base, "logs"),
		Data:   filepath.Join(base, "data"),
	}, nil
}

// DatabasePath returns the sqlite file used when store.path is not set.
func (p Paths) DatabasePath() string {
	return filepath.Join(p.Data, "xmlbot.db")
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Logs, p.Data} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
