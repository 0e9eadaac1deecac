package store

import "errors"

// Sentinel errors for storage operations. Every failure a backend returns
// wraps exactly one of these, so callers can classify with errors.Is()
// without depending on backend-specific error types.
//
//	lib, err := st.GetLibraryByIdentifier(ctx, id)
//	if errors.Is(err, store.ErrNotFound) {
//	    // structured "library not found" response
//	}
var (
	// ErrConnection indicates the backend could not be reached or the
	// connection was lost mid-operation.
	ErrConnection = errors.New("storage connection error")

	// ErrQuery indicates a read or write statement failed.
	ErrQuery = errors.New("storage query error")

	// ErrNotFound indicates the requested library, version, document, or
	// job does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a uniqueness constraint was violated.
	ErrDuplicate = errors.New("duplicate record")

	// ErrValidation indicates malformed input: a bad identifier, a missing
	// required field, or an embedding whose length does not match the
	// configured dimensionality.
	ErrValidation = errors.New("validation error")

	// ErrVectorSearch indicates a similarity query failed.
	ErrVectorSearch = errors.New("vector search error")

	// ErrMigration indicates a schema migration file failed. The wrapping
	// message names the file.
	ErrMigration = errors.New("migration error")

	// ErrRateLimited indicates the embedding provider exhausted its retry
	// budget.
	ErrRateLimited = errors.New("provider rate limit exhausted")
)
