package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL     string `yaml:"database_url"`
	QuoteAPIBaseURL string `yaml:"quote_api_base_url"`
	QuoteAPIKey     string `yaml:"quote_api_key"`
	APIPort         int    `yaml:"api_port"`
	CallDelayMs     int    `yaml:"call_delay_ms"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
