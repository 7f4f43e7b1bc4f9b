package sync

import "errors"

var (
	// ErrNotAuthenticated means there is no signed-in user context. Every
	// sync operation is a no-op under this condition.
	ErrNotAuthenticated = errors.New("no authenticated user")

	// ErrDocumentTooLarge means the candidate snapshot serialized past the
	// backend's per-document ceiling. The check runs before any remote
	// write so the caller can tell the user to prune history instead of
	// discovering the limit through a backend rejection.
	ErrDocumentTooLarge = errors.New("snapshot exceeds remote document size limit")
)
