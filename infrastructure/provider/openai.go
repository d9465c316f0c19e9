package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	openai "github.com/sashabaranov/go-openai"

	"github.com/helixml/vectable/domain/embedding"
)

// DefaultBatchSize is the default number of texts per embedding API call.
const DefaultBatchSize = 100

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// knownDimensions lists the output size of the hosted OpenAI embedding models.
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// errEmbeddingCountMismatch indicates the API returned fewer embedding vectors
// than requested. Partial responses behind a 200 status are transient, so it
// is retried.
var errEmbeddingCountMismatch = errors.New("embedding response count mismatch")

// errUpstreamProviderFailure indicates the API returned HTTP 200 with no data,
// no model and zero usage. Routing gateways answer this way when every
// upstream failed; it is not retried.
var errUpstreamProviderFailure = errors.New("upstream provider failure")

// OpenAIConfig holds configuration for the OpenAI embedding function.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Dimensions    int
	BatchSize     int
	Timeout       time.Duration
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	CacheDir      string
}

// OpenAIFunction embeds text through an OpenAI-compatible embeddings endpoint.
type OpenAIFunction struct {
	client        *openai.Client
	model         string
	dimensions    int
	sendDims      bool
	batchSize     int
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
}

// NewOpenAIFunction creates an OpenAI embedding function from configuration.
// The dimension comes from cfg.Dimensions or the known-model table; a model
// with neither is rejected by DestType.
func NewOpenAIFunction(cfg OpenAIConfig) *OpenAIFunction {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	var transport http.RoundTripper
	if cfg.CacheDir != "" {
		transport = NewCachingTransport(cfg.CacheDir, nil)
	}
	if cfg.Timeout > 0 || transport != nil {
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	dims := cfg.Dimensions
	if dims <= 0 {
		dims = knownDimensions[model]
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	initialDelay := cfg.InitialDelay
	if initialDelay == 0 {
		initialDelay = 2 * time.Second
	}

	backoffFactor := cfg.BackoffFactor
	if backoffFactor == 0 {
		backoffFactor = 2.0
	}

	return &OpenAIFunction{
		client:        openai.NewClientWithConfig(config),
		model:         model,
		dimensions:    dims,
		sendDims:      cfg.Dimensions > 0,
		batchSize:     batchSize,
		maxRetries:    maxRetries,
		initialDelay:  initialDelay,
		backoffFactor: backoffFactor,
	}
}

// Model returns the embedding model name.
func (p *OpenAIFunction) Model() string { return p.model }

// SourceType returns Utf8.
func (p *OpenAIFunction) SourceType() arrow.DataType { return arrow.BinaryTypes.String }

// DestType returns the model's vector type for string sources.
func (p *OpenAIFunction) DestType(source arrow.DataType) (embedding.VectorType, error) {
	if err := textDestType(source, p.dimensions); err != nil {
		return embedding.VectorType{}, fmt.Errorf("openai model %q: %w", p.model, err)
	}
	return embedding.NewVectorType(p.dimensions), nil
}

// ComputeSourceEmbeddings embeds every row of source, in API calls of at most
// the configured batch size.
func (p *OpenAIFunction) ComputeSourceEmbeddings(ctx context.Context, source arrow.Array) ([][]float32, error) {
	values, err := texts(source)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(values))
	for start := 0; start < len(values); start += p.batchSize {
		end := min(start+p.batchSize, len(values))
		vectors, err := p.embed(ctx, values[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// ComputeQueryEmbeddings embeds a single text query.
func (p *OpenAIFunction) ComputeQueryEmbeddings(ctx context.Context, query any) ([]float32, error) {
	text, err := queryText(query)
	if err != nil {
		return nil, err
	}
	vectors, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embed performs one embeddings request, retrying transient failures.
func (p *OpenAIFunction) embed(ctx context.Context, batch []string) ([][]float32, error) {
	if len(batch) == 0 {
		return [][]float32{}, nil
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.model),
		Input: batch,
	}
	if p.sendDims {
		req.Dimensions = p.dimensions
	}

	var resp openai.EmbeddingResponse
	err := p.withRetry(ctx, func() error {
		var err error
		resp, err = p.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 && string(resp.Model) == "" && resp.Usage.TotalTokens == 0 {
			return fmt.Errorf("%w: HTTP 200 with no data, no model and zero usage", errUpstreamProviderFailure)
		}
		if len(resp.Data) != len(batch) {
			return fmt.Errorf("%w: got %d vectors for %d texts", errEmbeddingCountMismatch, len(resp.Data), len(batch))
		}
		return nil
	})
	if err != nil {
		return nil, p.wrapError("embedding", err)
	}

	out := make([][]float32, len(batch))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(out) {
			return nil, p.wrapError("embedding", fmt.Errorf("%w: index %d out of range", errEmbeddingCountMismatch, data.Index))
		}
		out[data.Index] = data.Embedding
	}
	return out, nil
}

// withRetry executes the function with exponential backoff retry.
func (p *OpenAIFunction) withRetry(ctx context.Context, fn func() error) error {
	delay := p.initialDelay
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !p.isRetryable(lastErr) {
			return lastErr
		}

		if attempt < p.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * p.backoffFactor)
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable determines if an error should be retried.
func (p *OpenAIFunction) isRetryable(err error) bool {
	if errors.Is(err, errEmbeddingCountMismatch) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}

// wrapError wraps an OpenAI error into a ProviderError.
func (p *OpenAIFunction) wrapError(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError(operation, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(operation, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	return NewProviderError(operation, 0, err.Error(), err)
}

// OpenAIFactory returns a factory building OpenAI functions from base and the
// definition params "model", "dim", "base_url" and "batch_size". The API key
// always comes from base: definitions are stored and served in the clear.
func OpenAIFactory(base OpenAIConfig) embedding.Factory {
	return embedding.FactoryFunc(func(params embedding.Params) (embedding.Function, error) {
		cfg := base
		cfg.Model = params.GetString("model", cfg.Model)
		cfg.Dimensions = params.GetInt("dim", cfg.Dimensions)
		cfg.BaseURL = params.GetString("base_url", cfg.BaseURL)
		cfg.BatchSize = params.GetInt("batch_size", cfg.BatchSize)
		if cfg.Dimensions < 0 {
			return nil, fmt.Errorf("openai: %w: %d", ErrUnknownDimension, cfg.Dimensions)
		}
		return NewOpenAIFunction(cfg), nil
	})
}

var _ embedding.Function = (*OpenAIFunction)(nil)
