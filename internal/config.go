package internal

import (
	"fmt"

	"github.com/spf13/viper"
)

type GraniteConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		Workdir   string `mapstructure:"workdir"`
		PoolSize  int    `mapstructure:"pool_size"`
		ReplacerK int    `mapstructure:"replacer_k"`
	} `mapstructure:"storage"`

	Index struct {
		HeaderMaxDepth    int `mapstructure:"header_max_depth"`
		DirectoryMaxDepth int `mapstructure:"directory_max_depth"`
		BucketMaxSize     int `mapstructure:"bucket_max_size"`
	} `mapstructure:"index"`

	Shell struct {
		Prompt      string `mapstructure:"prompt"`
		HistoryFile string `mapstructure:"history_file"`
	} `mapstructure:"shell"`
}

func LoadConfig(path string) (*GraniteConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("app_name", "granitedb")
	v.SetDefault("storage.workdir", "./data")
	v.SetDefault("storage.pool_size", 128)
	v.SetDefault("storage.replacer_k", 2)
	v.SetDefault("index.header_max_depth", 2)
	v.SetDefault("index.directory_max_depth", 9)
	v.SetDefault("index.bucket_max_size", 255)
	v.SetDefault("shell.prompt", "granite> ")
	v.SetDefault("shell.history_file", "")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg GraniteConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns the configuration used when no config file is given.
func DefaultConfig() *GraniteConfig {
	cfg := &GraniteConfig{AppName: "granitedb"}
	cfg.Storage.Workdir = "./data"
	cfg.Storage.PoolSize = 128
	cfg.Storage.ReplacerK = 2
	cfg.Index.HeaderMaxDepth = 2
	cfg.Index.DirectoryMaxDepth = 9
	cfg.Index.BucketMaxSize = 255
	cfg.Shell.Prompt = "granite> "
	return cfg
}
