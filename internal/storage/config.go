package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Path string `yaml:"path" toml:"path"`
	} `yaml:"database" toml:"database"`

	Ollama struct {
		BaseURL         string `yaml:"base_url" toml:"base_url"`
		CompletionModel string `yaml:"completion_model" toml:"completion_model"`
		EmbeddingModel  string `yaml:"embedding_model" toml:"embedding_model"`
		ContextWindow   int    `yaml:"context_window" toml:"context_window"`
	} `yaml:"ollama" toml:"ollama"`

	Graph struct {
		Endpoint string        `yaml:"endpoint" toml:"endpoint"`
		Timeout  time.Duration `yaml:"timeout" toml:"timeout"`
	} `yaml:"graph" toml:"graph"`

	Thresholds struct {
		Similarity      float64 `yaml:"similarity" toml:"similarity"`
		Search          float64 `yaml:"search" toml:"search"`
		StalenessDays   int     `yaml:"staleness_days" toml:"staleness_days"`
		MinTextLength   int     `yaml:"min_text_length" toml:"min_text_length"`
		RelatedArticles int     `yaml:"related_articles" toml:"related_articles"`
	} `yaml:"thresholds" toml:"thresholds"`

	Themes struct {
		StopAfterFirstFlush bool `yaml:"stop_after_first_flush" toml:"stop_after_first_flush"`
		BatchLimit          int  `yaml:"batch_limit" toml:"batch_limit"`
	} `yaml:"themes" toml:"themes"`

	Prompts struct {
		ArticleSummary string `yaml:"article_summary,omitempty" toml:"article_summary,omitempty"`
		ThemeSummary   string `yaml:"theme_summary,omitempty" toml:"theme_summary,omitempty"`
		ArticleGraph   string `yaml:"article_graph,omitempty" toml:"article_graph,omitempty"`
	} `yaml:"prompts,omitempty" toml:"prompts,omitempty"`

	Temperatures struct {
		ArticleSummary float64 `yaml:"article_summary" toml:"article_summary"`
		ThemeSummary   float64 `yaml:"theme_summary" toml:"theme_summary"`
		ArticleGraph   float64 `yaml:"article_graph" toml:"article_graph"`
	} `yaml:"temperatures,omitempty" toml:"temperatures,omitempty"`

	Server struct {
		Addr           string   `yaml:"addr" toml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
	} `yaml:"server" toml:"server"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./wayfinder.db"
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Ollama.CompletionModel = "llama3.1"
	cfg.Ollama.EmbeddingModel = "nomic-embed-text"
	cfg.Ollama.ContextWindow = 16000
	cfg.Graph.Timeout = 30 * time.Second
	cfg.Thresholds.Similarity = 0.8
	cfg.Thresholds.Search = 0.5
	cfg.Thresholds.StalenessDays = 90
	cfg.Thresholds.MinTextLength = 1000
	cfg.Thresholds.RelatedArticles = 10
	cfg.Themes.BatchLimit = 100
	cfg.Temperatures.ArticleSummary = 0.3
	cfg.Temperatures.ThemeSummary = 0.5
	cfg.Temperatures.ArticleGraph = 0.1
	cfg.Server.Addr = ":8080"
	cfg.Server.AllowedOrigins = []string{"*"}
	return cfg
}

// LoadConfig reads path over the defaults. Files ending in .toml are
// decoded as TOML, anything else as YAML. A missing file yields the
// defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides config values from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("WAYFINDER_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		c.Ollama.BaseURL = v
	}
	if v := os.Getenv("WAYFINDER_COMPLETION_MODEL"); v != "" {
		c.Ollama.CompletionModel = v
	}
	if v := os.Getenv("WAYFINDER_EMBEDDING_MODEL"); v != "" {
		c.Ollama.EmbeddingModel = v
	}
	if v := os.Getenv("WAYFINDER_GRAPH_ENDPOINT"); v != "" {
		c.Graph.Endpoint = v
	}
}

// Save writes the config as YAML or TOML according to the file extension.
func (c *Config) Save(path string) error {
	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(c)
		data = []byte(sb.String())
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}
