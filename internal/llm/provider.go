// Package llm abstracts the AI backends the tutor can stream answers
// from. Providers are registered once at startup; the chat gateway only
// ever talks to the Provider interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrNoDefaultProvider = errors.New("no default provider configured")
)

// Provider is one AI backend capable of streaming chat completions.
type Provider interface {
	// Name returns the provider name used in config and logs.
	Name() string

	// Generate performs a blocking completion request.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// GenerateStream performs a streaming completion request. The
	// returned channel yields at most one terminal chunk (Done or
	// Error); a channel closed without a terminal chunk means the
	// transport died mid-stream.
	GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, error)
}

// Request is a provider-neutral completion request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Message is one turn of the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role identifies a message's author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Response is a complete, non-streamed answer.
type Response struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// StreamChunk is one increment of a streamed answer.
type StreamChunk struct {
	Content string
	Done    bool
	Error   error
}

// Registry holds the configured providers and the default selection.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	defaultP  string
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// SetDefault selects the provider used when callers don't name one.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	r.defaultP = name
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Default returns the configured default provider, falling back to any
// registered provider when none was selected.
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultP != "" {
		if p, ok := r.providers[r.defaultP]; ok {
			return p, nil
		}
	}
	for _, p := range r.providers {
		return p, nil
	}
	return nil, ErrNoDefaultProvider
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
