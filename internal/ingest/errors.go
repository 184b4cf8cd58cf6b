package ingest

import "errors"

// Failure classes for a single source's import run. Fetch and parse failures
// are recorded against the source and do not affect sibling sources; storage
// failures abort the remaining work for that source only.
var (
	// ErrContentUnavailable indicates the source's content could not be
	// fetched: missing file, unreachable URL, non-2xx response, or an
	// empty body.
	ErrContentUnavailable = errors.New("content unavailable")

	// ErrMalformedDocument indicates the fetched content is not a
	// well-formed XMLTV document.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrStorageFailure indicates a database write failed during import.
	ErrStorageFailure = errors.New("storage failure")
)
