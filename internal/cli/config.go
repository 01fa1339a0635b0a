package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-learning/tileboard/internal/paths"
	"github.com/mesh-learning/tileboard/pkg/store"
)

// configFileName is the file read from the configuration directory.
const configFileName = "config.yaml"

// Config is the tool configuration loaded from config.yaml, overridable
// with TILEBOARD_* environment variables.
type Config struct {
	Mode    string     `mapstructure:"mode" yaml:"mode"`
	Portal  string     `mapstructure:"portal" yaml:"portal"`
	DataDir string     `mapstructure:"data_dir" yaml:"data_dir,omitempty"`
	Listen  string     `mapstructure:"listen" yaml:"listen"`
	User    UserConfig `mapstructure:"user" yaml:"user"`
}

// UserConfig identifies the acting user and their class context.
type UserConfig struct {
	ID         string `mapstructure:"id" yaml:"id"`
	Name       string `mapstructure:"name" yaml:"name"`
	ClassHash  string `mapstructure:"class_hash" yaml:"class_hash"`
	OfferingID string `mapstructure:"offering_id" yaml:"offering_id"`
}

func defaultConfig() Config {
	return Config{
		Mode:   store.ModeDev,
		Portal: "localhost",
		Listen: "127.0.0.1:8407",
		User: UserConfig{
			ID:         "local",
			Name:       "Local User",
			ClassHash:  "local-class",
			OfferingID: "local-offering",
		},
	}
}

// loadConfig reads config.yaml from the resolved configuration
// directory. A missing file yields the defaults.
func loadConfig() (Config, string, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return Config{}, "", fmt.Errorf("resolve config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(configDir, configFileName))
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TILEBOARD")
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("mode", def.Mode)
	v.SetDefault("portal", def.Portal)
	v.SetDefault("listen", def.Listen)
	v.SetDefault("user.id", def.User.ID)
	v.SetDefault("user.name", def.User.Name)
	v.SetDefault("user.class_hash", def.User.ClassHash)
	v.SetDefault("user.offering_id", def.User.OfferingID)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return Config{}, "", fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("parse config: %w", err)
	}
	return cfg, configDir, nil
}

// writeConfigIfMissing creates config.yaml with the given values if it
// does not exist; an existing file is left alone.
func writeConfigIfMissing(path string, cfg Config) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// resolveDataDir applies the data directory precedence for cfg.
func resolveDataDir(cfg Config) (string, error) {
	return paths.ResolveDataDir(flags.dataDir, cfg.DataDir)
}

// storeUser converts the configured user to its store form.
func storeUser(cfg Config) *store.User {
	return &store.User{
		ID:         cfg.User.ID,
		Name:       cfg.User.Name,
		Portal:     cfg.Portal,
		ClassHash:  cfg.User.ClassHash,
		OfferingID: cfg.User.OfferingID,
	}
}
