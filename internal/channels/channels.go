// Package channels holds the adapters that perform the network call to each
// delivery platform.
package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
)

// Content is the channel-independent body of a post plus its typed metadata.
type Content struct {
	Subject   string
	Text      string
	MediaURLs []string
	Link      string
	Metadata  models.Metadata
}

// Target identifies where a send goes. Address is empty for broadcast channels.
type Target struct {
	OrganisationID uuid.UUID
	PostID         uuid.UUID
	ContactID      *uuid.UUID
	Address        string
}

// Credential is the bearer credential of a broadcast account.
type Credential struct {
	AccountID   string
	AccessToken string
}

type Result struct {
	ExternalID string
	Provider   string
}

type Adapter interface {
	Channel() models.Channel
	Provider() string
	Send(ctx context.Context, content Content, target Target, cred Credential) (*Result, error)
}

// CallTimeout returns the per-call timeout for a. Adapters that move large
// payloads may scale the base budget.
func CallTimeout(a Adapter, base time.Duration) time.Duration {
	if l, ok := a.(interface {
		CallTimeout(time.Duration) time.Duration
	}); ok {
		return l.CallTimeout(base)
	}
	return base
}

type ErrorKind string

const (
	ErrorKindAuth            ErrorKind = "auth"
	ErrorKindRateLimited     ErrorKind = "rate_limited"
	ErrorKindContentRejected ErrorKind = "content_rejected"
	ErrorKindUnknown         ErrorKind = "unknown"
)

// Error is the typed failure of an adapter call.
type Error struct {
	Kind     ErrorKind
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same call may succeed if repeated. A call the
// platform accepted without returning an id is not repeated.
func (e *Error) Retryable() bool {
	if errors.Is(e.Err, ErrNoExternalID) {
		return false
	}
	return e.Kind == ErrorKindRateLimited || e.Kind == ErrorKindUnknown
}

func newError(provider string, kind ErrorKind, status int, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Status: status, Err: err}
}

// ErrNoExternalID marks a successful response that carried no post id.
var ErrNoExternalID = errors.New("response carried no id")

// published builds the result of a created post. A 2xx answer without an id
// cannot be traced back and is reported as unknown.
func published(provider, id string) (*Result, error) {
	if id == "" {
		return nil, newError(provider, ErrorKindUnknown, 0, ErrNoExternalID)
	}
	return &Result{ExternalID: id, Provider: provider}, nil
}

func rejected(provider string, format string, args ...any) *Error {
	return newError(provider, ErrorKindContentRejected, 0, fmt.Errorf(format, args...))
}

// KindForStatus maps an HTTP status of a provider response to an error kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorKindAuth
	case status == http.StatusTooManyRequests:
		return ErrorKindRateLimited
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity ||
		status == http.StatusRequestEntityTooLarge || status == http.StatusNotFound:
		return ErrorKindContentRejected
	}
	return ErrorKindUnknown
}

// AsError unwraps err into an adapter error. Errors that did not come from an
// adapter are reported as unknown.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError("unknown", ErrorKindUnknown, 0, err)
}

var ErrNoAdapter = errors.New("no adapter registered for channel")

type Registry struct {
	adapters map[models.Channel]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Channel]Adapter, len(adapters))}
	for _, a := range adapters {
		if a != nil {
			r.adapters[a.Channel()] = a
		}
	}
	return r
}

func (r *Registry) Get(ch models.Channel) (Adapter, error) {
	a, ok := r.adapters[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, ch)
	}
	return a, nil
}
