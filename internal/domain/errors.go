// Package domain defines the core types and interfaces for Kestrel.
package domain

import "errors"

// ErrInvalidRecord marks a feed record with a missing or malformed
// required field. Such records are rejected, never coerced.
var ErrInvalidRecord = errors.New("invalid record")
