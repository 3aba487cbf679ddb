package storage

import "errors"

var (
	// ErrStateInvalid covers missing, expired, already-used, and
	// mismatched state tokens. Callers never learn which; internal logs
	// carry the detail.
	ErrStateInvalid = errors.New("invalid or expired state token")
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrMediaNotFound      = errors.New("staged media not found")
)
