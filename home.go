package firegex

import (
	"os"
	"path/filepath"
)

// Home returns the firegexctl home directory.
// It defaults to ~/.firegex but can be overridden with the FIREGEX_HOME environment variable.
func Home() string {
	if v := os.Getenv("FIREGEX_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".firegex")
}

// DefaultJournalPath returns the default SQLite journal path (~/.firegex/history.db).
func DefaultJournalPath() string {
	return filepath.Join(Home(), "history.db")
}

// DefaultConfigPath returns the default configuration file (~/.firegex/config.yaml).
func DefaultConfigPath() string {
	return filepath.Join(Home(), "config.yaml")
}
