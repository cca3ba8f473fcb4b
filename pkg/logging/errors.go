// rewrite/pkg/logging/errors.go

package logging

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

type ErrorType string

const (
	ErrorTypeParse     ErrorType = "PARSE"
	ErrorTypeCompile   ErrorType = "COMPILE"
	ErrorTypeRuntime   ErrorType = "RUNTIME"
	ErrorTypeStore     ErrorType = "STORE"
	ErrorTypeScript    ErrorType = "SCRIPT"
	ErrorTypeInvariant ErrorType = "INVARIANT"
)

type RewriteError struct {
	Type    ErrorType
	Message string
	Err     error
	Fields  map[string]interface{}
}

func (e *RewriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *RewriteError) Unwrap() error {
	return e.Err
}

func NewError(errType ErrorType, message string, err error, fields map[string]interface{}) *RewriteError {
	return &RewriteError{
		Type:    errType,
		Message: message,
		Err:     err,
		Fields:  fields,
	}
}

// IsType reports whether err wraps a RewriteError of the given type.
func IsType(err error, errType ErrorType) bool {
	var rwErr *RewriteError
	if errors.As(err, &rwErr) {
		return rwErr.Type == errType
	}
	return false
}

func LogError(logger zerolog.Logger, err error) {
	var rwErr *RewriteError
	if !errors.As(err, &rwErr) {
		logger.Error().Err(err).Msg(err.Error())
		return
	}

	event := logger.Error().Err(rwErr.Err).
		Str("error_type", string(rwErr.Type))

	for k, v := range rwErr.Fields {
		event = event.Interface(k, v)
	}

	event.Msg(rwErr.Message)
}
