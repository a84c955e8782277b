// Package apperr defines the error kinds surfaced by the sync and
// enrichment pipeline. Every error returned to a caller carries a
// machine-checkable Kind next to the human-readable message.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindCredentialMissing: no valid token for owner+mailbox. Surfaced to
	// the caller, never retried here.
	KindCredentialMissing Kind = "credential_missing"
	// KindRemoteFetchFailed: provider call failed or timed out. Surfaced per
	// page; the caller may retry by re-issuing the same page request.
	KindRemoteFetchFailed Kind = "remote_fetch_failed"
	// KindValidationFailed: malformed incoming message. Logged and dropped
	// from the batch; the batch otherwise proceeds.
	KindValidationFailed Kind = "validation_failed"
	// KindNotFound: referenced message or user absent in the store.
	KindNotFound Kind = "not_found"
	// KindEnrichmentFailed: annotator error or timeout. Persisted as an error
	// marker on the message and delivered as an error event.
	KindEnrichmentFailed Kind = "enrichment_failed"
	// KindInternal: everything else.
	KindInternal Kind = "internal"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from err, walking the wrap chain.
// Unclassified errors report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
