package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"
)

const envPrefix = "DUPELINK__"

type Configuration struct {
	Filter        FilterConfiguration `koanf:"filter"`
	Workers       int                 `koanf:"workers"`
	Policy        string              `koanf:"policy"`
	BackupSuffix  string              `koanf:"backup_suffix"`
	ReportDB      string              `koanf:"report_db"`
	MetricsFile   string              `koanf:"metrics_file"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

var (
	Config *Configuration
	K      = koanf.New(".")
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"filter.pattern":               "*",
		"filter.min_size":              1024,
		"workers":                      1,
		"policy":                       "first-seen",
		"backup_suffix":                ".bak",
		"notifications.detailed":       true,
		"notifications.skip_empty_run": false,
		"notifications.color":          true,
	}
}

// Init loads the configuration into the package globals. A missing config file is not an
// error; defaults and environment variables still apply.
func Init(configFilePath string) error {
	k, cfg, err := load(configFilePath)
	if err != nil {
		return err
	}

	K = k
	Config = cfg
	return nil
}

// Load builds a configuration from defaults, the YAML file at configFilePath (if present)
// and DUPELINK__ prefixed environment variables, in that order of precedence.
func Load(configFilePath string) (*Configuration, error) {
	_, cfg, err := load(configFilePath)
	return cfg, err
}

func load(configFilePath string) (*koanf.Koanf, *Configuration, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, nil, errors.Wrap(err, "load defaults")
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err == nil {
			if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
				return nil, nil, errors.Wrapf(err, "load config file %s", configFilePath)
			}
		} else if !os.IsNotExist(err) {
			return nil, nil, errors.Wrapf(err, "stat config file %s", configFilePath)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, nil, errors.Wrap(err, "load environment")
	}

	cfg := &Configuration{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, nil, errors.Wrap(err, "unmarshal config")
	}

	return k, cfg, nil
}

// envKey maps DUPELINK__NOTIFICATIONS__SKIP_EMPTY_RUN to notifications.skip_empty_run.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// GetDefaultConfigDirectory returns the directory of the running binary when it holds
// filename, otherwise the per-user config directory for app.
func GetDefaultConfigDirectory(app string, filename string) string {
	if exe, err := os.Executable(); err == nil {
		bcd := filepath.Dir(exe)
		if _, err := os.Stat(filepath.Join(bcd, filename)); err == nil {
			return bcd
		}
	}

	ucd, err := os.UserConfigDir()
	if err != nil {
		return "."
	}

	acd := filepath.Join(ucd, app)
	if _, err := os.Stat(acd); os.IsNotExist(err) {
		_ = os.MkdirAll(acd, os.ModePerm)
	}

	return acd
}
