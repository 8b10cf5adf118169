package store

import "github.com/cockroachdb/errors"

// Errors of the store and base registry. Their messages are sent to clients.
var (
	ErrInvalidName          = errors.New("invalid name")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrNoSuchBase           = errors.New("no such database")
	ErrInUse                = errors.New("database in use")
	ErrMissingCreate        = errors.New("missing create option")
	ErrUnsupportedOperation = errors.New("operation not supported by the database")
)
