// hunt/store/errors.go
package store

import "errors"

// ErrDuplicateKey is wrapped into insert errors caused by an existing
// document, so callers can distinguish conflicts from store failures.
var ErrDuplicateKey = errors.New("duplicate record")
