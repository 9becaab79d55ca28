package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeInternalError         = "INTERNAL_ERROR"
	ErrCodeInvalidOperation      = "INVALID_OPERATION"
	ErrCodeNoExtractableText     = "NO_EXTRACTABLE_TEXT"
	ErrCodeEmbeddingUnavailable  = "EMBEDDING_UNAVAILABLE"
	ErrCodeIndexUnavailable      = "INDEX_UNAVAILABLE"
	ErrCodeGenerationUnavailable = "GENERATION_UNAVAILABLE"
)

// Validation errors
var (
	ErrEmptyQuestion          = NewDomainError(ErrCodeValidation, "question cannot be empty")
	ErrEmptyText              = NewDomainError(ErrCodeValidation, "text cannot be empty")
	ErrEmptyDocument          = NewDomainError(ErrCodeValidation, "document is empty")
	ErrUnsupportedContentType = NewDomainError(ErrCodeValidation, "unsupported document type")
	ErrInvalidCollectionName  = NewDomainError(ErrCodeValidation, "invalid collection name")
	ErrDimensionMismatch      = NewDomainError(ErrCodeValidation, "embedding dimension mismatch")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
)

// Operation errors
var (
	ErrSourceStoreNotConfigured = NewDomainError(ErrCodeInvalidOperation, "source storage not configured, reprocess unavailable")
)

// ErrNoExtractableText is returned when a document yields no text at all.
var ErrNoExtractableText = NewDomainError(ErrCodeNoExtractableText, "document has no extractable text")

// EmbeddingUnavailable wraps the last failure once every tier and retry is spent.
func EmbeddingUnavailable(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeEmbeddingUnavailable, "embedding unavailable", err)
}

// IndexUnavailable wraps a vector store failure on insert or search.
func IndexUnavailable(op string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeIndexUnavailable, "vector index unavailable during "+op, err)
}

// GenerationUnavailable wraps a failed call to the generation capability.
func GenerationUnavailable(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeGenerationUnavailable, "answer generation unavailable", err)
}

// HasCode reports whether any DomainError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var de *DomainError
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the code of the outermost DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
