package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrMissingCredential = errors.New("api key is not configured")
	ErrInvalidResponse   = errors.New("invalid provider response")
	ErrFetchExhausted    = errors.New("fetch retries exhausted")
	ErrNoActiveDocument  = errors.New("no active document")
	ErrNoURLFound        = errors.New("no url found in frontmatter")
	ErrConfiguration     = errors.New("configuration error")
	ErrFileWrite         = errors.New("file write failed")
	ErrFileCreation      = errors.New("file creation failed")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrMissingCredential, "MISSING_CREDENTIAL"},
	{ErrInvalidResponse, "INVALID_RESPONSE"},
	{ErrFetchExhausted, "FETCH_FAILURE"},
	{ErrNoActiveDocument, "NO_ACTIVE_FILE"},
	{ErrNoURLFound, "NO_URL_FOUND"},
	{ErrConfiguration, "CONFIGURATION_ERROR"},
	{ErrFileWrite, "FILE_WRITE_FAILURE"},
	{ErrFileCreation, "FILE_CREATION_FAILURE"},
}

// Code returns the stable error code recorded in frontmatter for err,
// or an empty string when err is not one of the known kinds.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}
