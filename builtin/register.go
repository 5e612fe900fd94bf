// Package builtin registers all built-in providers with the default registry.
package builtin

import (
	ollamaEmbed "github.com/mvasko/codeseg/builtin/embedding/ollama"
	openaiEmbed "github.com/mvasko/codeseg/builtin/embedding/openai"
	"github.com/mvasko/codeseg/builtin/vectorstore/sqlitevec"
	"github.com/mvasko/codeseg/pkg/provider"
)

func init() {
	provider.RegisterEmbedding("ollama", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return ollamaEmbed.New(ollamaEmbed.Config{
			Endpoint:  cfg.Endpoint,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		}), nil
	})

	provider.RegisterEmbedding("openai", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return openaiEmbed.New(openaiEmbed.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.Endpoint,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		}), nil
	})

	provider.RegisterVectorStore("sqlitevec", func() (provider.VectorStore, error) {
		return sqlitevec.New(), nil
	})
}
