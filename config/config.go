package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the tunables of a recovery session.
type Config struct {
	Threshold    float64 `mapstructure:"threshold"`
	SectorSize   int     `mapstructure:"sector_size"`
	ChunkSectors int     `mapstructure:"chunk_sectors"`
	ClusterSize  int     `mapstructure:"cluster_size"`
	OutputDir    string  `mapstructure:"output_dir"`
	LogFile      string  `mapstructure:"log_file"`
	Color        string  `mapstructure:"color"`
	Mode         string  `mapstructure:"mode"`
}

var ErrInvalidConfig = errors.New("invalid configuration")

func setDefaults(v *viper.Viper) {
	v.SetDefault("threshold", 0.5)
	v.SetDefault("sector_size", 512)
	v.SetDefault("chunk_sectors", 2048)
	v.SetDefault("cluster_size", 4096)
	v.SetDefault("output_dir", "recuperabit_output")
	v.SetDefault("log_file", "logs.txt")
	v.SetDefault("color", "auto")
	v.SetDefault("mode", "auto")
}

// Load reads fsrecover.yaml from the usual places, or path when given, and
// lets FSRECOVER_* environment variables override it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fsrecover")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.fsrecover")
	}

	v.SetEnvPrefix("FSRECOVER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (config Config) Validate() error {
	if config.Threshold < 0 || config.Threshold > 1 {
		return fmt.Errorf("threshold %v outside [0,1]: %w", config.Threshold, ErrInvalidConfig)
	}
	switch config.SectorSize {
	case 512, 1024, 2048, 4096:
	default:
		return fmt.Errorf("sector size %d: %w", config.SectorSize, ErrInvalidConfig)
	}
	if config.ChunkSectors <= 0 {
		return fmt.Errorf("chunk of %d sectors: %w", config.ChunkSectors, ErrInvalidConfig)
	}
	if config.ClusterSize < 512 || config.ClusterSize&(config.ClusterSize-1) != 0 {
		return fmt.Errorf("cluster size %d: %w", config.ClusterSize, ErrInvalidConfig)
	}
	switch config.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("color %q, use auto, always or never: %w", config.Color, ErrInvalidConfig)
	}
	return nil
}
