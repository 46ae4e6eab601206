package config

type FilterConfiguration struct {
	// Pattern is the glob candidate file names must match.
	Pattern string `koanf:"pattern"`
	// Exclude globs are matched against paths relative to the scanned directory.
	Exclude []string `koanf:"exclude"`
	// Ignore expressions drop any candidate they match before grouping.
	Ignore []string `koanf:"ignore"`
	// MinSize in bytes; smaller files are never deduplicated.
	MinSize int64 `koanf:"min_size"`
}
