package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/edustack/knowledge-backend/internal/platform/logger"
)

// Engine turns text into fixed-dimension embedding vectors.
type Engine interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Close() error
}

// InitError reports a failure to load the model artifacts. It is fatal at
// startup: an engine is never returned half-initialized.
type InitError struct {
	Stage string
	Path  string
	Cause error
}

func (e *InitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("embedding init failed (stage=%s path=%s): %v", e.Stage, e.Path, e.Cause)
	}
	return fmt.Sprintf("embedding init failed (stage=%s path=%s)", e.Stage, e.Path)
}

func (e *InitError) Unwrap() error {
	return e.Cause
}

// Config points the engine at its three artifacts.
type Config struct {
	ModelPath    string
	ManifestPath string
	VocabPath    string
}

type localEngine struct {
	log       *logger.Logger
	manifest  Manifest
	tokenizer *tokenizer
	model     *model

	// The forward pass runs through a single shared weight session.
	mu     sync.Mutex
	closed bool
}

func New(log *logger.Logger, cfg Config) (Engine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	manifest, err := LoadManifest(cfg.ManifestPath)
	if err != nil {
		return nil, err
	}
	vocab, err := LoadVocab(cfg.VocabPath)
	if err != nil {
		return nil, err
	}
	if vocab.Size() != manifest.VocabSize {
		return nil, &InitError{
			Stage: "vocab",
			Path:  cfg.VocabPath,
			Cause: fmt.Errorf("vocab has %d rows, manifest declares %d", vocab.Size(), manifest.VocabSize),
		}
	}
	for _, id := range []int{vocab.padID, vocab.unkID, vocab.clsID, vocab.sepID} {
		if id >= vocab.Size() {
			return nil, &InitError{
				Stage: "vocab",
				Path:  cfg.VocabPath,
				Cause: fmt.Errorf("special token id %d outside vocab of %d rows", id, vocab.Size()),
			}
		}
	}
	mod, err := loadModel(cfg.ModelPath, manifest)
	if err != nil {
		return nil, err
	}

	log.Info(
		"embedding engine ready",
		"dimension", manifest.Dimension,
		"hidden_size", manifest.HiddenSize,
		"max_sequence_length", manifest.MaxSequenceLength,
		"vocab_size", manifest.VocabSize,
	)
	return &localEngine{
		log:       log.With("service", "EmbeddingEngine"),
		manifest:  manifest,
		tokenizer: newTokenizer(vocab, manifest.MaxSequenceLength),
		model:     mod,
	}, nil
}

func (e *localEngine) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seq := e.tokenizer.encode(text)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, fmt.Errorf("embedding engine is closed")
	}
	raw := e.model.forward(seq)
	e.mu.Unlock()

	vec := resize(raw, e.manifest.Dimension)
	normalize(vec)
	return vec, nil
}

func (e *localEngine) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.Encode(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *localEngine) Dimension() int {
	return e.manifest.Dimension
}

func (e *localEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.model = nil
	e.log.Info("embedding engine closed")
	return nil
}

// resize truncates or zero-fills the raw model output to the published
// embedding dimension.
func resize(raw []float32, dim int) []float32 {
	out := make([]float32, dim)
	copy(out, raw)
	return out
}

// normalize scales the vector to unit L2 norm in place. A zero vector is
// left unchanged.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
