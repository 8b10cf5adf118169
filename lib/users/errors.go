package users

import "github.com/cockroachdb/errors"

// Errors of the credential store. Their messages are sent to clients.
var (
	ErrAuthFailed           = errors.New("authentication failed")
	ErrNoSuchUser           = errors.New("no such user")
	ErrUserExists           = errors.New("user exist")
	ErrSelfDelete           = errors.New("cannot delete own user")
	ErrSelfPermissionChange = errors.New("cannot change own permissions")
	ErrInvalidPermissions   = errors.New("invalid permissions")
)
