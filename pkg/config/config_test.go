package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmle/talkdocs/pkg/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "mistral", cfg.LLM.Model)
	assert.Equal(t, "nomic-embed-text:latest", cfg.LLM.EmbedModel)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.BaseURL)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
	assert.Equal(t, "segments", cfg.Database.TableName)
	assert.Equal(t, 768, cfg.Database.VectorDim)
	assert.Equal(t, 512, cfg.Chunker.ChunkSize)
	assert.Equal(t, 24, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, 4096, cfg.Chat.MemoryTokens)
	assert.Equal(t, 10, cfg.Chat.MaxIterations)
	assert.Equal(t, 3, cfg.Chat.TopK)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `llm:
  model: llama3
  max_tokens: 1000
database:
  url: postgres://localhost:5432/talkdocs
chunker:
  chunk_size: 256
  chunk_overlap: 16
chat:
  streaming: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 1000, cfg.LLM.MaxTokens)
	assert.Equal(t, "postgres://localhost:5432/talkdocs", cfg.Database.URL)
	assert.Equal(t, 256, cfg.Chunker.ChunkSize)
	assert.Equal(t, 16, cfg.Chunker.ChunkOverlap)
	assert.True(t, cfg.Chat.Streaming)

	// Unset fields still get defaults.
	assert.Equal(t, "nomic-embed-text:latest", cfg.LLM.EmbedModel)
	assert.Equal(t, 3, cfg.Chat.TopK)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := config.LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://ollama.internal:11434")
	t.Setenv("CATALOG_PATH", "/var/lib/talkdocs/catalog.db")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "http://ollama.internal:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "/var/lib/talkdocs/catalog.db", cfg.Catalog.Path)
}

func TestValidateDefaultsPass(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Validate())
}

func TestValidateCatchesBadValues(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	cfg.LLM.BaseURL = ""
	cfg.LLM.MaxTokens = 100000
	cfg.LLM.Temperature = 5
	cfg.Chunker.ChunkOverlap = cfg.Chunker.ChunkSize

	errors := cfg.Validate()
	require.NotEmpty(t, errors)

	fields := make(map[string]bool)
	for _, e := range errors {
		fields[e.Field] = true
	}
	assert.True(t, fields["llm.base_url"])
	assert.True(t, fields["llm.max_tokens"])
	assert.True(t, fields["llm.temperature"])
	assert.True(t, fields["chunker.chunk_overlap"])
}
