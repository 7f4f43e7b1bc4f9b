package gateway

import "errors"

// Gateway error taxonomy. Implementations wrap these sentinels so the sync
// orchestrator and the HTTP layer can classify failures with errors.Is
// without knowing the backend.
var (
	// ErrPermissionDenied means the backend rejected the read or write
	// under its access rules. Local data stays usable offline.
	ErrPermissionDenied = errors.New("remote permission denied")

	// ErrNetwork is a transient connectivity failure. A manual re-trigger
	// is sufficient; the local snapshot remains the source of truth.
	ErrNetwork = errors.New("remote unreachable")
)
