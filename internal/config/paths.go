package config

import "path/filepath"

// Home returns the berrychat root directory (ResolveHome()).
func Home() string {
	return ResolveHome()
}

// DataDir returns the data directory, fixed at home/data.
func DataDir() string {
	return filepath.Join(Home(), "data")
}

// ArchiveDir returns where the file archive driver writes, archive.dir or home/data/archive.
func ArchiveDir(cfg *Config) string {
	if cfg != nil && cfg.Archive.Dir != "" {
		return cfg.Archive.Dir
	}
	return filepath.Join(DataDir(), "archive")
}
