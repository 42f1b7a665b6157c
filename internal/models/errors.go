package models

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrClaimConflict        = errors.New("post already claimed")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrCredentialNotFound   = errors.New("channel credential not found")
)
