package domain

import "errors"

// Error kinds surfaced by the pipeline. Callers wrap them with fmt.Errorf and
// classify with errors.Is.
var (
	// ErrInvalidInput means the upload is not an image, or estimation was
	// requested for an empty item list. No remote call is made.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRead means the uploaded bytes could not be read.
	ErrRead = errors.New("read error")

	// ErrRemoteCall covers transport failures, non-2xx responses, timeouts and
	// responses that do not match the expected schema.
	ErrRemoteCall = errors.New("remote call failed")

	// ErrStaleResponse marks a result that arrived for a superseded run. It is
	// never shown to users.
	ErrStaleResponse = errors.New("stale response")
)
