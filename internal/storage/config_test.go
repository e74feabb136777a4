package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Thresholds.StalenessDays != 90 || cfg.Ollama.ContextWindow != 16000 {
		t.Errorf("defaults not applied: %+v", cfg.Thresholds)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
database:
  path: /tmp/w.db
ollama:
  completion_model: qwen2.5
graph:
  endpoint: https://neptune.example:8182
  timeout: 5s
thresholds:
  similarity: 0.75
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Database.Path != "/tmp/w.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Ollama.CompletionModel != "qwen2.5" {
		t.Errorf("completion model = %q", cfg.Ollama.CompletionModel)
	}
	if cfg.Ollama.EmbeddingModel != "nomic-embed-text" {
		t.Errorf("unset field should keep default, got %q", cfg.Ollama.EmbeddingModel)
	}
	if cfg.Graph.Timeout != 5*time.Second {
		t.Errorf("graph timeout = %v", cfg.Graph.Timeout)
	}
	if cfg.Thresholds.Similarity != 0.75 {
		t.Errorf("similarity threshold = %v", cfg.Thresholds.Similarity)
	}
}

func TestLoadConfig_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[database]
path = "/var/lib/wayfinder.db"

[themes]
stop_after_first_flush = true
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Database.Path != "/var/lib/wayfinder.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if !cfg.Themes.StopAfterFirstFlush {
		t.Error("stop_after_first_flush should be true")
	}
}

func TestConfigApplyEnv(t *testing.T) {
	t.Setenv("WAYFINDER_DB", "/env/db.sqlite")
	t.Setenv("OLLAMA_HOST", "gpu-box:11434")
	t.Setenv("WAYFINDER_GRAPH_ENDPOINT", "https://graph.example")

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if cfg.Database.Path != "/env/db.sqlite" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Ollama.BaseURL != "http://gpu-box:11434" {
		t.Errorf("ollama base url = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Graph.Endpoint != "https://graph.example" {
		t.Errorf("graph endpoint = %q", cfg.Graph.Endpoint)
	}
}

func TestConfigSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := DefaultConfig()
			cfg.Ollama.CompletionModel = "mistral"
			if err := cfg.Save(path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			loaded, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			if loaded.Ollama.CompletionModel != "mistral" {
				t.Errorf("completion model = %q", loaded.Ollama.CompletionModel)
			}
		})
	}
}
