package sqlite

import "strings"

// Config holds SQLite store settings.
type Config struct {
	// Path is the database file. ":memory:" keeps everything in process
	// memory and is the default.
	Path string

	// BusyTimeoutMS is how long a writer waits on a locked database (default: 5000).
	BusyTimeoutMS int
}

func (c *Config) defaults() {
	if c.Path == "" {
		c.Path = ":memory:"
	}
	if c.BusyTimeoutMS == 0 {
		c.BusyTimeoutMS = 5000
	}
}

// inMemory reports whether the database lives only in process memory.
func (c Config) inMemory() bool {
	return c.Path == ":memory:" || strings.Contains(c.Path, "mode=memory")
}
