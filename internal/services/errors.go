package services

import (
	"errors"

	"github.com/campaign-hub/backend/internal/channels"
	"github.com/campaign-hub/backend/internal/models"
)

// Dispatch failure taxonomy
var (
	ErrMissingCredential  = errors.New("missing channel credential")
	ErrNoRecipients       = errors.New("no resolvable recipients")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrAlreadySent        = errors.New("post already sent")
	ErrPostFailed         = errors.New("post failed permanently, requeue it first")
	ErrUnsupportedChannel = errors.New("unsupported channel")
	ErrInvalidReport      = errors.New("invalid delivery status report")
	ErrClaimConflict      = models.ErrClaimConflict
)

// FailureReason names the class of err for notifications and metric labels.
func FailureReason(err error) string {
	var metaErr *models.MetadataError
	var extErr *channels.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredential):
		return "MissingCredential"
	case errors.Is(err, ErrNoRecipients):
		return "NoRecipients"
	case errors.Is(err, ErrQuotaExceeded):
		return "QuotaExceeded"
	case errors.Is(err, ErrClaimConflict):
		return "ClaimConflict"
	case errors.Is(err, ErrUnsupportedChannel):
		return "UnsupportedChannel"
	case errors.As(err, &metaErr):
		return "InvalidMetadata"
	case errors.As(err, &extErr):
		return "ExternalServiceError"
	}
	return "InternalError"
}

// isPermanent reports whether retrying the post cannot change the outcome.
func isPermanent(err error) bool {
	var metaErr *models.MetadataError
	if errors.As(err, &metaErr) || errors.Is(err, ErrUnsupportedChannel) {
		return true
	}
	var extErr *channels.Error
	return errors.As(err, &extErr) && extErr.Kind == channels.ErrorKindContentRejected
}
