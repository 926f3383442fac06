// Package config provides configuration management for soundloc
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	DOA     DOAConfig     `mapstructure:"doa"`
	Search  SearchConfig  `mapstructure:"search"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StoreConfig configures the recorded-signal store
type StoreConfig struct {
	Filepath  string `mapstructure:"filepath"`
	Recovered bool   `mapstructure:"recovered"`
}

// DOAConfig configures the direction-of-arrival adapter
type DOAConfig struct {
	Algorithm   string    `mapstructure:"algorithm"`
	NumSources  int       `mapstructure:"num_sources"`
	SampleRate  int       `mapstructure:"sample_rate"`
	FFTSize     int       `mapstructure:"fft_size"`
	SoundSpeed  float64   `mapstructure:"sound_speed"`
	FreqRangeHz []float64 `mapstructure:"freq_range_hz"`
}

// SearchConfig configures the radial search and subset scheduling
type SearchConfig struct {
	CombinationSize   int     `mapstructure:"combination_size"`
	Tolerance         float64 `mapstructure:"tolerance"`
	RadiusMax         float64 `mapstructure:"radius_max"`
	Workers           int     `mapstructure:"workers"`
	SkipFailedSubsets bool    `mapstructure:"skip_failed_subsets"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Filepath:  "./data",
			Recovered: false,
		},
		DOA: DOAConfig{
			Algorithm:   "SRP",
			NumSources:  1,
			SampleRate:  16000,
			FFTSize:     256,
			SoundSpeed:  30,
			FreqRangeHz: []float64{0, 250},
		},
		Search: SearchConfig{
			CombinationSize:   3,
			Tolerance:         1e-3,
			RadiusMax:         0.5,
			Workers:           5,
			SkipFailedSubsets: false,
		},
		Server: ServerConfig{
			Port:            9000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			GracefulTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from file and environment
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			// Config file not found is okay, use defaults
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				// Only warn, don't fail - we have defaults
				fmt.Printf("Warning: config file not found at %s, using defaults\n", path)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("SOUNDLOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Store defaults
	v.SetDefault("store.filepath", "./data")
	v.SetDefault("store.recovered", false)

	// DOA defaults
	v.SetDefault("doa.algorithm", "SRP")
	v.SetDefault("doa.num_sources", 1)
	v.SetDefault("doa.sample_rate", 16000)
	v.SetDefault("doa.fft_size", 256)
	v.SetDefault("doa.sound_speed", 30.0)
	v.SetDefault("doa.freq_range_hz", []float64{0, 250})

	// Search defaults
	v.SetDefault("search.combination_size", 3)
	v.SetDefault("search.tolerance", 1e-3)
	v.SetDefault("search.radius_max", 0.5)
	v.SetDefault("search.workers", 5)
	v.SetDefault("search.skip_failed_subsets", false)

	// Server defaults
	v.SetDefault("server.port", 9000)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.graceful_timeout", "5s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Store.Filepath == "" {
		return fmt.Errorf("store filepath must not be empty")
	}

	if c.DOA.NumSources < 1 {
		return fmt.Errorf("num_sources must be >= 1, got %d", c.DOA.NumSources)
	}

	if c.DOA.FFTSize < 2 || c.DOA.FFTSize&(c.DOA.FFTSize-1) != 0 {
		return fmt.Errorf("fft_size must be a power of two, got %d", c.DOA.FFTSize)
	}

	if c.DOA.SoundSpeed <= 0 {
		return fmt.Errorf("sound_speed must be > 0, got %f", c.DOA.SoundSpeed)
	}

	if len(c.DOA.FreqRangeHz) != 2 || c.DOA.FreqRangeHz[1] < c.DOA.FreqRangeHz[0] {
		return fmt.Errorf("freq_range_hz must be [low, high], got %v", c.DOA.FreqRangeHz)
	}

	if c.Search.CombinationSize < 2 {
		return fmt.Errorf("combination_size must be >= 2, got %d", c.Search.CombinationSize)
	}

	if c.Search.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be > 0, got %f", c.Search.Tolerance)
	}

	if c.Search.RadiusMax <= c.Search.Tolerance {
		return fmt.Errorf("radius_max must be > tolerance, got %f", c.Search.RadiusMax)
	}

	if c.Search.Workers < 1 || c.Search.Workers > 64 {
		return fmt.Errorf("workers must be between 1 and 64, got %d", c.Search.Workers)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}
