package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Engine is a deterministic stand-in for the real embedding engine: each
// input hashes to a stable unit vector, so tests get reproducible
// similarity behavior without model artifacts.
type Engine struct {
	Dims int

	// FailOn makes Encode error for one exact input, for exercising
	// partial-batch failure paths.
	FailOn map[string]error
}

func New() *Engine {
	return &Engine{Dims: 8}
}

func (e *Engine) Encode(ctx context.Context, text string) ([]float32, error) {
	_ = ctx
	if err, ok := e.FailOn[text]; ok {
		return nil, err
	}
	h := sha256.Sum256([]byte(text))
	vec := make([]float32, e.Dims)
	var sum float64
	for j := 0; j < e.Dims; j++ {
		u := binary.LittleEndian.Uint32(h[(j*4)%len(h):])
		vec[j] = float32(u%10_000)/10_000.0 - 0.5
		sum += float64(vec[j]) * float64(vec[j])
	}
	if sum > 0 {
		norm := float32(math.Sqrt(sum))
		for j := range vec {
			vec[j] /= norm
		}
	}
	return vec, nil
}

func (e *Engine) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

func (e *Engine) Dimension() int {
	return e.Dims
}

func (e *Engine) Close() error {
	return nil
}
