package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/mediapulse/newscrawler/internal/pipeline"
)

// LoadSources reads source definitions from a YAML/JSON file. The file
// holds a top-level `sources` list of SourceConfig documents. Durations
// use Go notation ("10m", "1h").
func LoadSources(path string) ([]pipeline.SourceConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var doc struct {
		Sources []pipeline.SourceConfig `mapstructure:"sources"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("unmarshal sources file: %w", err)
	}

	for i, src := range doc.Sources {
		if err := validateSource(src); err != nil {
			return nil, fmt.Errorf("source %d (%s): %w", i, src.ID, err)
		}
	}
	return doc.Sources, nil
}

func validateSource(src pipeline.SourceConfig) error {
	if strings.TrimSpace(src.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(src.URL) == "" {
		return fmt.Errorf("url is required")
	}
	switch src.Type {
	case pipeline.SourceRSS, pipeline.SourceAPI, pipeline.SourceHTML:
	default:
		return fmt.Errorf("unknown source type %q", src.Type)
	}
	if src.Interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	return nil
}
