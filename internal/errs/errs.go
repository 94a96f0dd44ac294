// Package errs defines the process-wide error taxonomy. Components wrap
// these sentinels with fmt.Errorf("...: %w", ...) and callers branch with
// errors.Is.
package errs

import "errors"

var (
	// ErrTransientNetwork marks an HTTP or connection failure that the
	// next cycle may not see again.
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrRateLimited marks a venue 429 or equivalent; the adapter backs
	// off before its next call.
	ErrRateLimited = errors.New("rate limited")

	// ErrMalformedQuote marks a tick that failed validation; the record
	// is dropped and the batch continues.
	ErrMalformedQuote = errors.New("malformed quote")

	// ErrUnsupported marks an operation the adapter does not provide in
	// this build.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrCredentialsMissing marks a private endpoint call without API
	// credentials in the environment.
	ErrCredentialsMissing = errors.New("credentials missing")

	// ErrStoreUnavailable marks a store read/write failure; the cycle is
	// skipped.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConfigInvalid marks an unusable configuration. The only fatal
	// kind: it aborts boot.
	ErrConfigInvalid = errors.New("invalid configuration")
)
