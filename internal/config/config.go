// Package config carries the settings shared by the run and serve commands.
// Flags and KEYWORDS_* environment variables build the base; an optional YAML
// file is merged over it, file values winning.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"github.com/vinceanalytics/keywords/internal/hits"
	"gopkg.in/yaml.v2"
)

// Store providers.
const (
	ProviderFS = "fs"
	ProviderS3 = "s3"
)

type Config struct {
	BatchSize int64  `yaml:"batch_size"`
	Workers   int    `yaml:"workers"`
	Listen    string `yaml:"listen"`
	LogLevel  string `yaml:"log_level"`
	Store     Store  `yaml:"store"`
}

// Store selects where serve mode fetches job inputs and lands reports.
type Store struct {
	Provider  string `yaml:"provider"`
	Directory string `yaml:"directory"`
	S3        S3     `yaml:"s3"`
}

type S3 struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Insecure  bool   `yaml:"insecure"`
}

// Flags shared by every command.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "logLevel",
			Usage:   "Log level",
			Value:   "info",
			Sources: cli.EnvVars("KEYWORDS_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to configuration file",
			Sources: cli.EnvVars("KEYWORDS_CONFIG"),
		},
		&cli.IntFlag{
			Name:    "batchSize",
			Usage:   "Rows buffered per scan batch",
			Value:   hits.DefaultBatchSize,
			Sources: cli.EnvVars("KEYWORDS_BATCH_SIZE"),
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Concurrent batch extraction workers",
			Value:   int64(runtime.GOMAXPROCS(0)),
			Sources: cli.EnvVars("KEYWORDS_WORKERS"),
		},
	}
}

// StoreFlags wire the object storage serve mode reads inputs from and writes
// reports to.
func StoreFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "storeProvider",
			Usage:   "Object storage provider, fs or s3",
			Value:   ProviderFS,
			Sources: cli.EnvVars("KEYWORDS_STORE_PROVIDER"),
		},
		&cli.StringFlag{
			Name:    "storeDirectory",
			Usage:   "Root directory of the fs provider",
			Value:   "keywords-data",
			Sources: cli.EnvVars("KEYWORDS_STORE_DIRECTORY"),
		},
		&cli.StringFlag{
			Name:    "s3Bucket",
			Sources: cli.EnvVars("KEYWORDS_S3_BUCKET"),
		},
		&cli.StringFlag{
			Name:    "s3Endpoint",
			Sources: cli.EnvVars("KEYWORDS_S3_ENDPOINT"),
		},
		&cli.StringFlag{
			Name:    "s3Region",
			Sources: cli.EnvVars("KEYWORDS_S3_REGION"),
		},
		&cli.StringFlag{
			Name:    "s3AccessKey",
			Sources: cli.EnvVars("KEYWORDS_S3_ACCESS_KEY"),
		},
		&cli.StringFlag{
			Name:    "s3SecretKey",
			Sources: cli.EnvVars("KEYWORDS_S3_SECRET_KEY"),
		},
		&cli.BoolFlag{
			Name:    "s3Insecure",
			Usage:   "Skip TLS when talking to the s3 endpoint",
			Sources: cli.EnvVars("KEYWORDS_S3_INSECURE"),
		},
	}
}

func Load(c *cli.Command) (*Config, error) {
	base := &Config{
		BatchSize: c.Int("batchSize"),
		Workers:   int(c.Int("workers")),
		Listen:    c.String("listen"),
		LogLevel:  c.String("logLevel"),
		Store: Store{
			Provider:  c.String("storeProvider"),
			Directory: c.String("storeDirectory"),
			S3: S3{
				Bucket:    c.String("s3Bucket"),
				Endpoint:  c.String("s3Endpoint"),
				Region:    c.String("s3Region"),
				AccessKey: c.String("s3AccessKey"),
				SecretKey: c.String("s3SecretKey"),
				Insecure:  c.Bool("s3Insecure"),
			},
		},
	}
	if path := c.String("config"); path != "" {
		d, err := os.ReadFile(path)
		if err == nil {
			var n Config
			if err := yaml.Unmarshal(d, &n); err != nil {
				return nil, fmt.Errorf("invalid configuration file %v", err)
			}
			base.merge(&n)
		}
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return base, nil
}

func (c *Config) merge(o *Config) {
	if o.BatchSize != 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Workers != 0 {
		c.Workers = o.Workers
	}
	if o.Listen != "" {
		c.Listen = o.Listen
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.Store.Provider != "" {
		c.Store.Provider = o.Store.Provider
	}
	if o.Store.Directory != "" {
		c.Store.Directory = o.Store.Directory
	}
	if o.Store.S3.Bucket != "" {
		c.Store.S3.Bucket = o.Store.S3.Bucket
	}
	if o.Store.S3.Endpoint != "" {
		c.Store.S3.Endpoint = o.Store.S3.Endpoint
	}
	if o.Store.S3.Region != "" {
		c.Store.S3.Region = o.Store.S3.Region
	}
	if o.Store.S3.AccessKey != "" {
		c.Store.S3.AccessKey = o.Store.S3.AccessKey
	}
	if o.Store.S3.SecretKey != "" {
		c.Store.S3.SecretKey = o.Store.S3.SecretKey
	}
	if o.Store.S3.Insecure {
		c.Store.S3.Insecure = true
	}
}

func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch size must be positive, got %d", c.BatchSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	switch c.Store.Provider {
	case "", ProviderFS:
	case ProviderS3:
		if c.Store.S3.Bucket == "" {
			return errors.New("config: s3 store needs a bucket")
		}
	default:
		return fmt.Errorf("config: unknown store provider %q", c.Store.Provider)
	}
	return nil
}

// Level parses the configured log level, defaulting to info on garbage.
func (c *Config) Level() zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}
