package rollup

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnregisteredSourceType = errors.New("unregistered source type")
	ErrMissingField           = errors.New("missing required field")
	ErrInvalidField           = errors.New("invalid field value")
	ErrMultipleMatches        = errors.New("multiple target records match identity key")
	ErrVersionConflict        = errors.New("target record changed concurrently")
	ErrRunInProgress          = errors.New("a run for this source type is already in progress")
	ErrLockLost               = errors.New("run lock lost before the run finished")
)

// ErrorKind classifies pipeline failures for callers and transports.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindAggregation   ErrorKind = "aggregation"
	KindMapping       ErrorKind = "mapping"
	KindPersistence   ErrorKind = "persistence"
	KindConflict      ErrorKind = "conflict"
	KindLocked        ErrorKind = "locked"
	KindInternal      ErrorKind = "internal"
)

// PipelineError is the terminal error of a run. Upserted reports how many
// identities were written before the failure.
type PipelineError struct {
	Kind        ErrorKind
	Stage       string
	SourceType  string
	IdentityKey string
	Upserted    int
	Cause       error
}

func (e *PipelineError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("rollup")
	if st := strings.TrimSpace(e.SourceType); st != "" {
		b.WriteString(" ")
		b.WriteString(st)
	}
	if stage := strings.TrimSpace(e.Stage); stage != "" {
		b.WriteString(" ")
		b.WriteString(stage)
	}
	fmt.Fprintf(&b, " (%s)", e.Kind)
	if e.IdentityKey != "" {
		fmt.Fprintf(&b, " identity_key=%q", e.IdentityKey)
	}
	if e.Upserted > 0 {
		fmt.Fprintf(&b, " upserted=%d", e.Upserted)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *PipelineError) Unwrap() error { return e.Cause }

// NewPipelineError tags cause with a kind and stage.
func NewPipelineError(kind ErrorKind, stage, sourceType string, cause error) *PipelineError {
	return &PipelineError{
		Kind:       kind,
		Stage:      strings.TrimSpace(stage),
		SourceType: strings.TrimSpace(sourceType),
		Cause:      cause,
	}
}

// KindOf extracts the error kind, falling back to sentinel classification.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, ErrUnregisteredSourceType):
		return KindConfiguration
	case errors.Is(err, ErrMissingField), errors.Is(err, ErrInvalidField):
		return KindMapping
	case errors.Is(err, ErrMultipleMatches), errors.Is(err, ErrVersionConflict):
		return KindConflict
	case errors.Is(err, ErrRunInProgress):
		return KindLocked
	default:
		return KindInternal
	}
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
