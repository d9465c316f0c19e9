package provider

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/helixml/vectable/domain/embedding"
)

// Sentence-transformers defaults.
const (
	DefaultSentenceTransformersModel     = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultSentenceTransformersDimension = 384
)

const hugotBatchMax = 32

// ortSingleton holds the process-wide inference session and one pipeline per
// model directory. ORT allows a single active session per process and is not
// thread-safe, so the mutex serializes initialization and inference.
var ortSingleton struct {
	mu        sync.Mutex
	session   *hugot.Session
	pipelines map[string]*pipelines.FeatureExtractionPipeline
}

// SentenceTransformersFunction embeds text locally with a sentence-transformers
// model run through the hugot feature extraction pipeline.
//
// The model is looked up in modelDir, in this order:
//  1. modelDir itself, when it holds tokenizer.json.
//  2. The subdirectory named after the model ("owner_name" or "name").
//  3. Any subdirectory holding tokenizer.json.
//  4. The model compiled into the binary (build tag embed_model), extracted
//     to modelDir on first use.
type SentenceTransformersFunction struct {
	modelDir  string
	model     string
	dimension int
}

// NewSentenceTransformersFunction creates a local embedding function. Empty
// model and non-positive dimension select the defaults.
func NewSentenceTransformersFunction(modelDir, model string, dimension int) *SentenceTransformersFunction {
	if model == "" {
		model = DefaultSentenceTransformersModel
	}
	if dimension <= 0 {
		dimension = DefaultSentenceTransformersDimension
	}
	return &SentenceTransformersFunction{modelDir: modelDir, model: model, dimension: dimension}
}

// Available reports whether a usable model exists on disk or in the binary.
func (h *SentenceTransformersFunction) Available() bool {
	if hasEmbeddedModel {
		return true
	}
	_, err := h.diskModelPath()
	return err == nil
}

// SourceType returns Utf8.
func (h *SentenceTransformersFunction) SourceType() arrow.DataType { return arrow.BinaryTypes.String }

// DestType returns the configured vector type for string sources.
func (h *SentenceTransformersFunction) DestType(source arrow.DataType) (embedding.VectorType, error) {
	if err := textDestType(source, h.dimension); err != nil {
		return embedding.VectorType{}, fmt.Errorf("sentence-transformers %q: %w", h.model, err)
	}
	return embedding.NewVectorType(h.dimension), nil
}

// ComputeSourceEmbeddings embeds every row of source. Inference runs in
// chunks so cancellation is observed between them.
func (h *SentenceTransformersFunction) ComputeSourceEmbeddings(ctx context.Context, source arrow.Array) ([][]float32, error) {
	values, err := texts(source)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(values))
	for start := 0; start < len(values); start += hugotBatchMax {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+hugotBatchMax, len(values))
		vectors, err := h.run(values[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// ComputeQueryEmbeddings embeds a single text query.
func (h *SentenceTransformersFunction) ComputeQueryEmbeddings(ctx context.Context, query any) ([]float32, error) {
	text, err := queryText(query)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors, err := h.run([]string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (h *SentenceTransformersFunction) run(batch []string) ([][]float32, error) {
	ortSingleton.mu.Lock()
	defer ortSingleton.mu.Unlock()

	pipeline, err := h.pipeline()
	if err != nil {
		return nil, fmt.Errorf("initialize sentence-transformers: %w", err)
	}

	result, err := pipeline.RunPipeline(batch)
	if err != nil {
		return nil, fmt.Errorf("run embedding pipeline: %w", err)
	}
	if len(result.Embeddings) != len(batch) {
		return nil, fmt.Errorf("run embedding pipeline: got %d vectors for %d texts", len(result.Embeddings), len(batch))
	}
	return result.Embeddings, nil
}

// pipeline returns the shared pipeline for this model. Callers hold ortSingleton.mu.
func (h *SentenceTransformersFunction) pipeline() (*pipelines.FeatureExtractionPipeline, error) {
	modelPath, err := h.resolveModelPath()
	if err != nil {
		return nil, err
	}
	if p, ok := ortSingleton.pipelines[modelPath]; ok {
		return p, nil
	}

	if ortSingleton.session == nil {
		session, err := newHugotSession()
		if err != nil {
			return nil, fmt.Errorf("create hugot session: %w", err)
		}
		ortSingleton.session = session
		ortSingleton.pipelines = make(map[string]*pipelines.FeatureExtractionPipeline)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      modelPath,
		Options: []hugot.FeatureExtractionOption{
			pipelines.WithNormalization(),
		},
	}
	p, err := hugot.NewPipeline(ortSingleton.session, config)
	if err != nil {
		return nil, fmt.Errorf("create feature extraction pipeline: %w", err)
	}
	ortSingleton.pipelines[modelPath] = p
	return p, nil
}

func (h *SentenceTransformersFunction) resolveModelPath() (string, error) {
	if diskPath, err := h.diskModelPath(); err == nil {
		return diskPath, nil
	}

	if !hasEmbeddedModel {
		return "", fmt.Errorf("no model %q found in %s and no embedded model compiled in (build with -tags embed_model)", h.model, h.modelDir)
	}

	if err := os.MkdirAll(h.modelDir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory: %w", err)
	}
	return extractEmbeddedModel(embeddedModelFS, h.modelDir)
}

func (h *SentenceTransformersFunction) diskModelPath() (string, error) {
	candidates := []string{
		h.modelDir,
		filepath.Join(h.modelDir, strings.ReplaceAll(h.model, "/", "_")),
		filepath.Join(h.modelDir, filepath.Base(h.model)),
	}
	for _, candidate := range candidates {
		if hasTokenizer(candidate) {
			return candidate, nil
		}
	}

	entries, err := os.ReadDir(h.modelDir)
	if err != nil {
		return "", fmt.Errorf("read model directory %s: %w", h.modelDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(h.modelDir, entry.Name())
		if hasTokenizer(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no model subdirectory with tokenizer.json found in %s", h.modelDir)
}

func hasTokenizer(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "tokenizer.json"))
	return err == nil
}

// extractEmbeddedModel writes the statically embedded model files to targetDir
// and returns the path to the model subdirectory.
func extractEmbeddedModel(embedded fs.FS, targetDir string) (string, error) {
	modelsFS, err := fs.Sub(embedded, "models")
	if err != nil {
		return "", fmt.Errorf("access embedded models: %w", err)
	}

	entries, err := fs.ReadDir(modelsFS, ".")
	if err != nil {
		return "", fmt.Errorf("read embedded models: %w", err)
	}

	var modelSubdir string
	for _, entry := range entries {
		if entry.IsDir() {
			modelSubdir = entry.Name()
			break
		}
	}
	if modelSubdir == "" {
		return "", fmt.Errorf("no model directory found in embedded models")
	}

	modelPath := filepath.Join(targetDir, modelSubdir)
	if hasTokenizer(modelPath) {
		return modelPath, nil
	}

	modelFS, err := fs.Sub(modelsFS, modelSubdir)
	if err != nil {
		return "", fmt.Errorf("access model subdirectory: %w", err)
	}

	err = fs.WalkDir(modelFS, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		target := filepath.Join(modelPath, path)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, readErr := fs.ReadFile(modelFS, path)
		if readErr != nil {
			return fmt.Errorf("read embedded file %s: %w", path, readErr)
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		return "", fmt.Errorf("extract embedded model: %w", err)
	}
	return modelPath, nil
}

// DownloadModel fetches a Hugging Face model into dest and returns its path.
func DownloadModel(repo, dest string) (string, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	path, err := hugot.DownloadModel(repo, dest, opts)
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", repo, err)
	}
	return path, nil
}

// SentenceTransformersFactory returns a factory reading the definition params
// "model_dir", "model" and "dim". modelDir is the default model directory.
func SentenceTransformersFactory(modelDir string) embedding.Factory {
	return embedding.FactoryFunc(func(params embedding.Params) (embedding.Function, error) {
		dir := params.GetString("model_dir", modelDir)
		if dir == "" {
			return nil, fmt.Errorf("sentence-transformers: no model directory configured")
		}
		return NewSentenceTransformersFunction(
			dir,
			params.GetString("model", DefaultSentenceTransformersModel),
			params.GetInt("dim", DefaultSentenceTransformersDimension),
		), nil
	})
}

var _ embedding.Function = (*SentenceTransformersFunction)(nil)
