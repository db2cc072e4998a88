package domain

import "errors"

var (
	// ErrInternalServerError will throw if any the Internal Server Error happen
	ErrInternalServerError = errors.New("internal Server Error")
	// ErrNotFound will throw if the requested item is not exists
	ErrNotFound = errors.New("your requested Item is not found")
	// ErrConflict will throw if the current action already exists
	ErrConflict = errors.New("your Item already exist")
	// ErrBadParamInput will throw if the given request-body or params is not valid
	ErrBadParamInput = errors.New("given Param is not valid")
	// ErrForbidden will throw if the caller may not act on the item
	ErrForbidden = errors.New("you are not allowed to do this")

	// ErrCacheMiss is returned by fast-store reads when the key is absent
	ErrCacheMiss = errors.New("cache miss")
	// ErrCacheUnavailable wraps fast-store failures on write paths that have no durable fallback
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrHydrationInProgress is returned when another instance holds the hydration claim for too long
	ErrHydrationInProgress = errors.New("like state hydration in progress")
	// ErrClaimLost is returned when a hydration claim expired and was taken over before the hydrator finished
	ErrClaimLost = errors.New("hydration claim lost")
	// ErrLikeStateExpired is returned by reconciliation when pending ops outlived the fast-store like state
	ErrLikeStateExpired = errors.New("like state expired before reconciliation")
)
