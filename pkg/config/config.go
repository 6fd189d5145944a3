package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		EmbedModel  string  `yaml:"embed_model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
	} `yaml:"database"`

	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`

	Storage struct {
		Root string `yaml:"root"`
	} `yaml:"storage"`

	Chunker struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"chunker"`

	Chat struct {
		MemoryTokens  int  `yaml:"memory_tokens"`
		MaxIterations int  `yaml:"max_iterations"`
		TopK          int  `yaml:"top_k"`
		Streaming     bool `yaml:"streaming"`
	} `yaml:"chat"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/talkdocs/config.yaml"),
			"/etc/talkdocs/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "nomic-embed-text:latest"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.1
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "segments"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Catalog.Path == "" {
		config.Catalog.Path = "talkdocs.db"
	}
	if config.Storage.Root == "" {
		config.Storage.Root = "storage"
	}

	if config.Chunker.ChunkSize == 0 {
		config.Chunker.ChunkSize = 512
	}
	if config.Chunker.ChunkOverlap == 0 {
		config.Chunker.ChunkOverlap = 24
	}

	if config.Chat.MemoryTokens == 0 {
		config.Chat.MemoryTokens = 4096
	}
	if config.Chat.MaxIterations == 0 {
		config.Chat.MaxIterations = 10
	}
	if config.Chat.TopK == 0 {
		config.Chat.TopK = 3
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if catalogPath := os.Getenv("CATALOG_PATH"); catalogPath != "" {
		config.Catalog.Path = catalogPath
	}
	if storageRoot := os.Getenv("STORAGE_ROOT"); storageRoot != "" {
		config.Storage.Root = storageRoot
	}
}
