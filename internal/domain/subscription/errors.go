package subscription

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrVersionConflict means another writer updated the row first.
	ErrVersionConflict = errors.New("subscription version conflict")
	ErrNotBillable     = errors.New("subscription is not managed by billing")
)
