// This file defines the configuration structure for the application.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port int `mapstructure:"port"`
	Log  struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Storage StorageConfig `mapstructure:"storage"`
	Import  ImportConfig  `mapstructure:"import"`
}

// StorageConfig selects the blob store that holds uploaded spreadsheets,
// archives, pre-uploaded images and attached product media.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // "local" or "s3"
	Local  struct {
		Root string `mapstructure:"root"`
	} `mapstructure:"local"`
	S3 struct {
		Bucket    string `mapstructure:"bucket"`
		Region    string `mapstructure:"region"`
		Endpoint  string `mapstructure:"endpoint"`
		Prefix    string `mapstructure:"prefix"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
	} `mapstructure:"s3"`
}

type ImportConfig struct {
	Currency           string        `mapstructure:"currency"`
	Locales            []string      `mapstructure:"locales"`
	DefaultProductType string        `mapstructure:"default_product_type"`
	ProgressEvery      int           `mapstructure:"progress_every"`
	ReclaimEvery       int           `mapstructure:"reclaim_every"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	SubmitDelay        time.Duration `mapstructure:"submit_delay"`
	MaxMessageLength   int           `mapstructure:"max_message_length"`
	ScratchDir         string        `mapstructure:"scratch_dir"`
	ScratchMaxAge      time.Duration `mapstructure:"scratch_max_age"`
	StaleAfter         time.Duration `mapstructure:"stale_after"`
	MaintenanceEvery   time.Duration `mapstructure:"maintenance_every"`
	Workers            int           `mapstructure:"workers"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	RemoteImagePrefix  string        `mapstructure:"remote_image_prefix"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")

	// CATALOG_DATABASE_PATH overrides `database.path`, and so on.
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.path", "./catalog.db")

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.root", "./storage")
	v.SetDefault("storage.s3.region", "us-east-1")

	v.SetDefault("import.currency", "eur")
	v.SetDefault("import.locales", []string{"en", "lv"})
	v.SetDefault("import.progress_every", 20)
	v.SetDefault("import.reclaim_every", 25)
	v.SetDefault("import.retry_delay", 5*time.Second)
	v.SetDefault("import.submit_delay", 5*time.Second)
	v.SetDefault("import.max_message_length", 200)
	v.SetDefault("import.scratch_dir", "")
	v.SetDefault("import.scratch_max_age", 24*time.Hour)
	v.SetDefault("import.stale_after", 6*time.Hour)
	v.SetDefault("import.maintenance_every", time.Hour)
	v.SetDefault("import.workers", 1)
	v.SetDefault("import.poll_interval", 5*time.Second)
	v.SetDefault("import.remote_image_prefix", "zipImages")
}

// Default returns the configuration Load would produce with no file and no
// environment overrides. Tests and the CLI use it as a base.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}
