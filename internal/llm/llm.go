// Package llm defines the contract a2rchi's pipelines invoke models
// through, plus a registry of factories keyed by model kind. Concrete
// provider clients (OpenAI, Anthropic, HuggingFace, vLLM, Ollama) are
// external collaborators whose wiring is out of scope (§1): only KindDumb
// ships a factory, enough to make every pipeline testable end-to-end.
package llm

import (
	"context"
	"fmt"
	"sync"
)

// Kind identifies a model provider.
type Kind string

const (
	KindOpenAI      Kind = "openai"
	KindAnthropic   Kind = "anthropic"
	KindHuggingFace Kind = "huggingface"
	KindVLLM        Kind = "vllm"
	KindOllama      Kind = "ollama"
	KindDumb        Kind = "dumb"
)

// Model is the contract pipelines invoke a language model through.
type Model interface {
	Invoke(ctx context.Context, text string) (string, error)
	GetNumTokens(text string) int
}

// StreamingModel is implemented by models that can stream their response
// incrementally. Not every Model implements it; callers type-assert.
type StreamingModel interface {
	Model
	Stream(ctx context.Context, text string) (<-chan string, error)
}

// ImageModel is implemented by multimodal models that accept images
// alongside a text prompt. Not every Model implements it; callers
// type-assert.
type ImageModel interface {
	Model
	InvokeWithImages(ctx context.Context, prompt string, images [][]byte) (string, error)
}

// Factory constructs a Model from a provider-specific config map.
type Factory func(cfg map[string]any) (Model, error)

var (
	mu       sync.RWMutex
	registry = map[Kind]Factory{}
)

func init() {
	Register(KindDumb, func(cfg map[string]any) (Model, error) {
		maxTokens := 256
		if v, ok := cfg["max_tokens"].(int); ok && v > 0 {
			maxTokens = v
		}
		echo := true
		if v, ok := cfg["echo"].(bool); ok {
			echo = v
		}
		return NewDumbModel(maxTokens, echo)
	})
}

// Register installs f as the factory for kind, overwriting any previous
// registration. Called from package init for built-ins and by deployments
// that wire in a concrete provider.
func Register(kind Kind, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[kind] = f
}

// New constructs a Model of the given kind.
func New(kind Kind, cfg map[string]any) (Model, error) {
	mu.RLock()
	f, ok := registry[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("llm: no factory registered for kind %q", kind)
	}
	return f(cfg)
}
