// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"time"

	"github.com/automa-saga/logx"
	"github.com/hashgraph/solo-storemig/pkg/store"
	"github.com/joomcode/errorx"
	"github.com/spf13/viper"
)

const EnvPrefix = "STOREMIG"

// Config holds the global configuration for the application.
type Config struct {
	Log       logx.LoggingConfig `yaml:"log" json:"log"`
	Catalog   CatalogConfig      `yaml:"catalog" json:"catalog"`
	Migration MigrationConfig    `yaml:"migration" json:"migration"`
}

// CatalogConfig represents the `catalog` configuration block.
type CatalogConfig struct {
	Dir   string `yaml:"dir" json:"dir"`     // directory holding catalog.yaml
	Final string `yaml:"final" json:"final"` // overrides the final version declared by the catalog
}

// MigrationConfig represents the `migration` configuration block.
type MigrationConfig struct {
	TempDir     string        `yaml:"tempDir" json:"tempDir"` // defaults to the directory of the store
	LockTimeout time.Duration `yaml:"lockTimeout" json:"lockTimeout"`
	StoreType   string        `yaml:"storeType" json:"storeType"`
	AssumeYes   bool          `yaml:"assumeYes" json:"assumeYes"`
}

// Validate validates all configuration fields.
func (c Config) Validate() error {
	return c.Migration.Validate()
}

func (c MigrationConfig) Validate() error {
	if c.LockTimeout < 0 {
		return errorx.IllegalArgument.New("migration lockTimeout must not be negative: %s", c.LockTimeout)
	}

	if _, err := store.ParseType(c.StoreType); err != nil {
		return errorx.IllegalArgument.Wrap(err, "invalid migration storeType: %s", c.StoreType)
	}

	if strings.ContainsRune(c.TempDir, 0) {
		return errorx.IllegalArgument.New("invalid migration tempDir: %q", c.TempDir)
	}

	return nil
}

func defaults() Config {
	return Config{
		Log: logx.LoggingConfig{
			Level:          "Info",
			ConsoleLogging: true,
			FileLogging:    false,
		},
		Migration: MigrationConfig{
			LockTimeout: 30 * time.Second,
			StoreType:   string(store.SQLite),
		},
	}
}

var globalConfig = defaults()

// Initialize loads the configuration from the specified file and the STOREMIG_ environment variables.
// Environment variables take precedence, e.g. STOREMIG_MIGRATION_TEMPDIR overrides migration.tempDir.
// An empty path only applies the environment on top of the defaults.
func Initialize(path string) error {
	cfg := defaults()

	viper.Reset()
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(cfg)

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return NotFoundError.Wrap(err, "failed to read config file: %s", path).
				WithProperty(errorx.PropertyPayload(), path)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return errorx.IllegalFormat.Wrap(err, "failed to parse configuration").
			WithProperty(errorx.PropertyPayload(), path)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	globalConfig = cfg
	return nil
}

// setDefaults registers every key with viper so that environment variables are picked up even for keys the
// config file does not mention.
func setDefaults(c Config) {
	viper.SetDefault("log.level", c.Log.Level)
	viper.SetDefault("log.consoleLogging", c.Log.ConsoleLogging)
	viper.SetDefault("log.fileLogging", c.Log.FileLogging)
	viper.SetDefault("catalog.dir", c.Catalog.Dir)
	viper.SetDefault("catalog.final", c.Catalog.Final)
	viper.SetDefault("migration.tempDir", c.Migration.TempDir)
	viper.SetDefault("migration.lockTimeout", c.Migration.LockTimeout)
	viper.SetDefault("migration.storeType", c.Migration.StoreType)
	viper.SetDefault("migration.assumeYes", c.Migration.AssumeYes)
}

// Get returns the loaded configuration.
func Get() Config {
	return globalConfig
}

func Set(c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	globalConfig = *c
	return nil
}

// OverrideMigrationConfig updates the migration configuration with provided overrides.
// Zero values are ignored (not applied).
func OverrideMigrationConfig(overrides MigrationConfig) {
	if overrides.TempDir != "" {
		globalConfig.Migration.TempDir = overrides.TempDir
	}
	if overrides.LockTimeout > 0 {
		globalConfig.Migration.LockTimeout = overrides.LockTimeout
	}
	if overrides.StoreType != "" {
		globalConfig.Migration.StoreType = overrides.StoreType
	}
	if overrides.AssumeYes {
		globalConfig.Migration.AssumeYes = true
	}
}

// OverrideCatalogConfig updates the catalog configuration with provided overrides.
// Empty string values are ignored (not applied).
func OverrideCatalogConfig(overrides CatalogConfig) {
	if overrides.Dir != "" {
		globalConfig.Catalog.Dir = overrides.Dir
	}
	if overrides.Final != "" {
		globalConfig.Catalog.Final = overrides.Final
	}
}
