package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Product     string   `yaml:"product"`
	Version     string   `yaml:"version"`
	APIPrefix   string   `yaml:"apiPrefix"`
	OfflinePath string   `yaml:"offlinePath"`
	Prewarm     []string `yaml:"prewarm"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
