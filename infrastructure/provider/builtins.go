package provider

import (
	"errors"
	"fmt"
	"os"

	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/internal/config"
)

// OpenAIConfigFromEndpoint converts an embedding endpoint to OpenAI settings.
// Without an API key the OPENAI_API_KEY environment variable is used.
func OpenAIConfigFromEndpoint(e config.Endpoint) OpenAIConfig {
	apiKey := e.APIKey()
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return OpenAIConfig{
		APIKey:        apiKey,
		BaseURL:       e.BaseURL(),
		Model:         e.Model(),
		Dimensions:    e.Dimensions(),
		Timeout:       e.Timeout(),
		MaxRetries:    e.MaxRetries(),
		InitialDelay:  e.InitialDelay(),
		BackoffFactor: e.BackoffFactor(),
	}
}

// RegisterBuiltins registers the openai, sentence-transformers and hash
// functions. An existing registration under the same name is left alone
// unless the registry allows overwriting.
func RegisterBuiltins(registry *embedding.Registry, cfg config.AppConfig) error {
	endpoint := config.NewEndpoint()
	if e := cfg.EmbeddingEndpoint(); e != nil {
		endpoint = *e
	}

	builtins := []struct {
		name    string
		factory embedding.Factory
	}{
		{OpenAIName, OpenAIFactory(OpenAIConfigFromEndpoint(endpoint))},
		{SentenceTransformersName, SentenceTransformersFactory(cfg.ModelDir())},
		{HashName, HashFactory()},
	}
	var opts []embedding.RegisterOption
	if cfg.AllowOverwrite() {
		opts = append(opts, embedding.WithOverwrite())
	}
	for _, b := range builtins {
		err := registry.Register(b.name, b.factory, opts...)
		if errors.Is(err, embedding.ErrDuplicateName) {
			continue
		}
		if err != nil {
			return fmt.Errorf("register %s: %w", b.name, err)
		}
	}
	return nil
}
