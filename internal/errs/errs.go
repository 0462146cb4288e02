// Package errs defines the error taxonomy shared by the digest pipeline.
// Every error carries a code so log lines and metrics can group failures
// without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeUnknown       = "UNKNOWN"
	CodeStorage       = "STORAGE"
	CodeSummarization = "SUMMARIZATION"
	CodeDelivery      = "DELIVERY"
	CodeConfig        = "CONFIG"
)

// CodedError is implemented by every error in this package.
type CodedError interface {
	error
	Code() string
	Unwrap() error
}

type base struct {
	code    string
	message string
	err     error
}

func (e *base) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *base) Code() string  { return e.code }
func (e *base) Unwrap() error { return e.err }

// Code returns the code of the first CodedError in err's chain,
// or CodeUnknown if there is none.
func Code(err error) string {
	var ce CodedError
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return CodeUnknown
}

// StorageError reports that the persistence layer was unreachable or returned malformed data.
type StorageError struct{ base }

// NewStorageError wraps cause as a StorageError.
func NewStorageError(message string, cause error) error {
	return &StorageError{base{code: CodeStorage, message: message, err: cause}}
}

// SummarizationError reports a failed or empty language-model call.
type SummarizationError struct{ base }

// NewSummarizationError wraps cause as a SummarizationError.
func NewSummarizationError(message string, cause error) error {
	return &SummarizationError{base{code: CodeSummarization, message: message, err: cause}}
}

// DeliveryError reports that an outbound digest could not be sent.
type DeliveryError struct {
	base
	ChatID int64
}

// NewDeliveryError wraps cause as a DeliveryError for chatID.
func NewDeliveryError(chatID int64, message string, cause error) error {
	return &DeliveryError{base: base{code: CodeDelivery, message: message, err: cause}, ChatID: chatID}
}

// ConfigError reports invalid or unreadable configuration.
type ConfigError struct{ base }

// NewConfigError wraps cause as a ConfigError.
func NewConfigError(message string, cause error) error {
	return &ConfigError{base{code: CodeConfig, message: message, err: cause}}
}
