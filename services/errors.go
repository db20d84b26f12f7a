package services

import (
	"errors"
	"fmt"

	"posts-rag-service/internal/vectorstore"
)

// ErrPostNotFound is returned when the referenced post does not exist
var ErrPostNotFound = vectorstore.ErrPostNotFound

// Error kinds reported in batch failures, logs and HTTP error codes.
const (
	KindValidation                = "ValidationError"
	KindDocumentNotFound          = "DocumentNotFound"
	KindEmbeddingGenerationFailed = "EmbeddingGenerationFailed"
	KindSearchFailed              = "SearchFailed"
	KindInternal                  = "InternalError"
)

// ValidationError rejects a request before any work is done
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// EmbeddingGenerationError means no embedding could be produced or stored for a post.
// Nothing was persisted.
type EmbeddingGenerationError struct {
	PostID int64
	Err    error
}

func (e *EmbeddingGenerationError) Error() string {
	return fmt.Sprintf("failed to generate embedding for post %d: %v", e.PostID, e.Err)
}

func (e *EmbeddingGenerationError) Unwrap() error {
	return e.Err
}

// SearchError wraps a provider or store failure during similarity search
type SearchError struct {
	Err error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("similarity search failed: %v", e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// ErrorKind maps err onto one of the Kind constants
func ErrorKind(err error) string {
	var (
		validationErr *ValidationError
		generationErr *EmbeddingGenerationError
		searchErr     *SearchError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.Is(err, ErrPostNotFound):
		return KindDocumentNotFound
	case errors.As(err, &generationErr):
		return KindEmbeddingGenerationFailed
	case errors.As(err, &searchErr):
		return KindSearchFailed
	default:
		return KindInternal
	}
}
