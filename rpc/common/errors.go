package common

import (
	"github.com/ValentinKolb/netlevel/lib/store"
	"github.com/ValentinKolb/netlevel/lib/users"
	"github.com/cockroachdb/errors"
)

// Protocol errors. Their messages are what clients see in the "error" field
// of a reply.
var (
	// ErrMalformedRequest is fatal: the connection is closed.
	ErrMalformedRequest = errors.New("malformed request")

	ErrNoCommand        = errors.New("no command")
	ErrAmbiguousCommand = errors.New("ambiguous command")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNoDatabase       = errors.New("no database in use")
	ErrNotAuthorized    = store.ErrNotAuthorized
)

// knownErrors are reported to clients by their own text only, the wrapping
// context stays in the server log.
var knownErrors = []error{
	ErrNoCommand, ErrAmbiguousCommand, ErrNoDatabase,
	store.ErrNotAuthorized, store.ErrInvalidName, store.ErrNoSuchBase,
	store.ErrInUse, store.ErrMissingCreate,
	users.ErrAuthFailed, users.ErrNoSuchUser, users.ErrUserExists,
	users.ErrSelfDelete, users.ErrSelfPermissionChange, users.ErrInvalidPermissions,
}

// ErrorText returns the message that is sent to clients for err.
func ErrorText(err error) string {
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

// ErrorFromText turns the error text of a reply back into an error. Texts
// of known errors yield an error matching that sentinel with errors.Is.
func ErrorFromText(text string) error {
	for _, known := range knownErrors {
		if known.Error() == text {
			return errors.WithStack(known)
		}
	}
	return errors.Newf("server error: %s", text)
}
