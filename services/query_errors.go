package services

import (
	"context"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// ErrorKind classifies a failure in the question-to-reply pipeline
type ErrorKind string

const (
	KindSyntaxError         ErrorKind = "SYNTAX_ERROR"
	KindConstraintViolation ErrorKind = "CONSTRAINT_VIOLATION"
	KindSchemaMismatch      ErrorKind = "SCHEMA_MISMATCH"
	KindExecutionTimeout    ErrorKind = "EXECUTION_TIMEOUT"
	KindStatementNotAllowed ErrorKind = "STATEMENT_NOT_ALLOWED"
	KindStoreFailure        ErrorKind = "STORE_FAILURE"
	KindTranslationFailure  ErrorKind = "TRANSLATION_FAILURE"
	KindRenderFailure       ErrorKind = "RENDER_FAILURE"
	KindMessengerFailure    ErrorKind = "MESSENGER_FAILURE"
)

// Sentinels for errors.Is; a *QueryError matches the sentinel of its kind.
var (
	ErrSyntax              = &QueryError{Kind: KindSyntaxError}
	ErrConstraintViolation = &QueryError{Kind: KindConstraintViolation}
	ErrSchemaMismatch      = &QueryError{Kind: KindSchemaMismatch}
	ErrExecutionTimeout    = &QueryError{Kind: KindExecutionTimeout}
	ErrStatementNotAllowed = &QueryError{Kind: KindStatementNotAllowed}
	ErrStoreFailure        = &QueryError{Kind: KindStoreFailure}
	ErrTranslationFailure  = &QueryError{Kind: KindTranslationFailure}
	ErrRenderFailure       = &QueryError{Kind: KindRenderFailure}
	ErrMessengerFailure    = &QueryError{Kind: KindMessengerFailure}
)

// QueryError is a classified pipeline failure
type QueryError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return string(e.Kind) + ": " + e.Message
	case e.Err != nil:
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is matches any *QueryError of the same kind
func (e *QueryError) Is(target error) bool {
	t, ok := target.(*QueryError)
	return ok && t.Kind == e.Kind
}

// Fatal reports whether the failure leaves nothing useful to tell the sender
// beyond a generic apology.
func (e *QueryError) Fatal() bool {
	return e.Kind == KindStoreFailure
}

func newQueryError(kind ErrorKind, message string, err error) *QueryError {
	return &QueryError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of a classified error, or "" for anything else
func KindOf(err error) ErrorKind {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return ""
}

// classifyStoreError maps an error returned by the sqlite driver onto the
// pipeline taxonomy. runCtx is the context the statement ran under.
func classifyStoreError(runCtx context.Context, err error) *QueryError {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return newQueryError(KindExecutionTimeout, "statement exceeded the execution time limit", err)
	}
	if errors.Is(runCtx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return newQueryError(KindExecutionTimeout, "statement was cancelled", err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			return newQueryError(KindConstraintViolation, constraintMessage(sqliteErr), err)
		case sqlite3.ErrInterrupt:
			return newQueryError(KindExecutionTimeout, "statement was interrupted", err)
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB, sqlite3.ErrCantOpen, sqlite3.ErrIoErr,
			sqlite3.ErrFull, sqlite3.ErrNoLFS, sqlite3.ErrPerm, sqlite3.ErrReadonly:
			return newQueryError(KindStoreFailure, "the database is unavailable", err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return newQueryError(KindStoreFailure, "the database is busy", err)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such table"),
		strings.Contains(msg, "no such column"),
		strings.Contains(msg, "no such function"),
		strings.Contains(msg, "has no column named"):
		return newQueryError(KindSchemaMismatch, "statement references an unknown identifier", err)
	case strings.Contains(msg, "syntax error"),
		strings.Contains(msg, "incomplete input"),
		strings.Contains(msg, "unrecognized token"):
		return newQueryError(KindSyntaxError, "statement could not be parsed", err)
	case strings.Contains(msg, "interrupted"):
		return newQueryError(KindExecutionTimeout, "statement was interrupted", err)
	case strings.Contains(msg, "constraint failed"):
		return newQueryError(KindConstraintViolation, "statement violates a constraint", err)
	}
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrError {
		// remaining SQL logic errors (misuse of aggregate, wrong number of arguments, ...)
		return newQueryError(KindSyntaxError, "statement is not valid", err)
	}
	return newQueryError(KindStoreFailure, "the database failed to execute the statement", err)
}

func constraintMessage(e sqlite3.Error) string {
	switch e.ExtendedCode {
	case sqlite3.ErrConstraintForeignKey:
		return "foreign key constraint failed"
	case sqlite3.ErrConstraintPrimaryKey:
		return "primary key constraint failed"
	case sqlite3.ErrConstraintUnique:
		return "unique constraint failed"
	case sqlite3.ErrConstraintNotNull:
		return "not null constraint failed"
	case sqlite3.ErrConstraintCheck:
		return "check constraint failed"
	}
	return "constraint failed"
}
