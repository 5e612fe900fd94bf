package provider

import (
	"fmt"
	"sync"
)

// EmbeddingFactory creates an EmbeddingProvider from configuration.
type EmbeddingFactory func(config EmbeddingConfig) (EmbeddingProvider, error)

// VectorStoreFactory creates a VectorStore.
type VectorStoreFactory func() (VectorStore, error)

// Registry holds factories for all provider types.
type Registry struct {
	mu sync.RWMutex

	embeddingFactories   map[string]EmbeddingFactory
	vectorStoreFactories map[string]VectorStoreFactory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		embeddingFactories:   make(map[string]EmbeddingFactory),
		vectorStoreFactories: make(map[string]VectorStoreFactory),
	}
}

// RegisterEmbedding registers an embedding provider factory.
func (r *Registry) RegisterEmbedding(name string, factory EmbeddingFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddingFactories[name] = factory
}

// RegisterVectorStore registers a vector store factory.
func (r *Registry) RegisterVectorStore(name string, factory VectorStoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectorStoreFactories[name] = factory
}

// CreateEmbedding creates an embedding provider by name.
func (r *Registry) CreateEmbedding(name string, config EmbeddingConfig) (EmbeddingProvider, error) {
	r.mu.RLock()
	factory, ok := r.embeddingFactories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s", name)
	}
	return factory(config)
}

// CreateVectorStore creates a vector store by name.
func (r *Registry) CreateVectorStore(name string) (VectorStore, error) {
	r.mu.RLock()
	factory, ok := r.vectorStoreFactories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown vector store: %s", name)
	}
	return factory()
}

// Default is the process-wide registry used by the builtin package.
var Default = NewRegistry()

// RegisterEmbedding registers an embedding factory with the default registry.
func RegisterEmbedding(name string, factory EmbeddingFactory) {
	Default.RegisterEmbedding(name, factory)
}

// RegisterVectorStore registers a vector store factory with the default registry.
func RegisterVectorStore(name string, factory VectorStoreFactory) {
	Default.RegisterVectorStore(name, factory)
}

// CreateEmbedding creates an embedding provider from the default registry.
func CreateEmbedding(name string, config EmbeddingConfig) (EmbeddingProvider, error) {
	return Default.CreateEmbedding(name, config)
}

// CreateVectorStore creates a vector store from the default registry.
func CreateVectorStore(name string) (VectorStore, error) {
	return Default.CreateVectorStore(name)
}
