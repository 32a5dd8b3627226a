package services

import (
	"errors"

	"github.com/edustack/knowledge-backend/internal/platform/milvus"
)

var (
	// ErrNotFound marks lookups for chunks or tenants that do not exist.
	ErrNotFound = errors.New("not found")

	// ErrExtractionFailed marks an ingest aborted before anything was
	// persisted: the file yielded no usable text.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrIndexUnavailable marks vector index timeouts and transport
	// failures, as opposed to rejected operations.
	ErrIndexUnavailable = errors.New("vector index unavailable")
)

// IsIndexUnavailable reports whether err is an availability problem of the
// vector index rather than a logical failure.
func IsIndexUnavailable(err error) bool {
	return errors.Is(err, ErrIndexUnavailable) || milvus.IsUnavailable(err)
}
