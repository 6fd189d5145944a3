package system

import (
	"fmt"

	"github.com/hmle/talkdocs/pkg/chunker"
	"github.com/hmle/talkdocs/pkg/config"
	"github.com/hmle/talkdocs/pkg/engine"
	"github.com/hmle/talkdocs/pkg/index"
	"github.com/hmle/talkdocs/pkg/llm"
	"github.com/hmle/talkdocs/pkg/reader"
	"github.com/hmle/talkdocs/pkg/store"
)

// FromConfig constructs a fully wired System: gateways, stores,
// registry and engine. Closing is the caller's job via Close.
func FromConfig(cfg *config.Config, trace engine.TraceFunc) (*System, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %v", errs[0])
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:     cfg.LLM.EmbedModel,
		BaseURL:   cfg.LLM.BaseURL,
		VectorDim: cfg.Database.VectorDim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vectorStore, err := store.NewWithConfig(store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
		SearchLimit: cfg.Chat.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	catalog, err := store.NewCatalogWithConfig(store.CatalogConfig{Path: cfg.Catalog.Path})
	if err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	blobs, err := store.NewFileBlobStore(cfg.Storage.Root)
	if err != nil {
		vectorStore.Close()
		catalog.Close()
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	tokenizer, err := chunker.NewTiktokenTokenizer()
	if err != nil {
		vectorStore.Close()
		catalog.Close()
		return nil, err
	}

	chk, err := chunker.NewWithConfig(chunker.ChunkerConfig{
		ChunkSize:    cfg.Chunker.ChunkSize,
		ChunkOverlap: cfg.Chunker.ChunkOverlap,
		Tokenizer:    tokenizer,
	})
	if err != nil {
		vectorStore.Close()
		catalog.Close()
		return nil, err
	}

	registry, err := index.NewRegistry(index.RegistryConfig{
		Store:    vectorStore,
		Catalog:  catalog,
		Embedder: embedder,
		TopK:     cfg.Chat.TopK,
	})
	if err != nil {
		vectorStore.Close()
		catalog.Close()
		return nil, err
	}

	eng, err := engine.NewWithConfig(engine.EngineConfig{
		Completer:     chatEngine,
		Registry:      registry,
		Catalog:       catalog,
		Tokenizer:     tokenizer,
		MemoryTokens:  cfg.Chat.MemoryTokens,
		MaxIterations: cfg.Chat.MaxIterations,
		Trace:         trace,
	})
	if err != nil {
		vectorStore.Close()
		catalog.Close()
		return nil, err
	}

	sys, err := NewWithConfig(SystemConfig{
		Reader:    reader.New(),
		Chunker:   chk,
		Registry:  registry,
		Catalog:   catalog,
		Blobs:     blobs,
		Completer: chatEngine,
		Engine:    eng,
	})
	if err != nil {
		vectorStore.Close()
		catalog.Close()
		return nil, err
	}
	sys.vectorStore = vectorStore

	return sys, nil
}

// Registry exposes the index registry, mainly so callers can reload
// state at startup.
func (s *System) Registry() *index.Registry {
	return s.config.Registry
}

// Close releases the storage connections a wired System holds.
func (s *System) Close() {
	if s.vectorStore != nil {
		s.vectorStore.Close()
	}
	s.config.Catalog.Close()
}
