package app

import (
	"path/filepath"

	"github.com/edustack/knowledge-backend/internal/embedding"
	"github.com/edustack/knowledge-backend/internal/ingestion/chunker"
	"github.com/edustack/knowledge-backend/internal/platform/envutil"
	"github.com/edustack/knowledge-backend/internal/platform/logger"
)

type Config struct {
	ChunkMaxSize int
	ModelDir     string
	Embedding    embedding.Config
}

func LoadConfig(log *logger.Logger) Config {
	chunkMaxSize := envutil.GetEnvAsInt("CHUNK_MAX_SIZE", chunker.DefaultMaxChunkSize, log)
	modelDir := envutil.GetEnv("EMBEDDING_MODEL_DIR", "models", log)
	return Config{
		ChunkMaxSize: chunkMaxSize,
		ModelDir:     modelDir,
		Embedding: embedding.Config{
			ModelPath:    filepath.Join(modelDir, "model.bin"),
			ManifestPath: filepath.Join(modelDir, "manifest.yaml"),
			VocabPath:    filepath.Join(modelDir, "vocab.txt"),
		},
	}
}
