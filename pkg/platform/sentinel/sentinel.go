package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Cache and limiter stores return
// these (optionally wrapped) so services can translate them into coded domain
// errors at the boundary.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: no entry exists under the key
// - ErrExpired: an entry exists but its TTL has lapsed
// - ErrUnavailable: the backing store cannot be reached
//
// For validation errors (bad input, unknown codes), use pkg/domain-errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)
