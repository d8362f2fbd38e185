package summarizer

import "errors"

var (
	ErrProviderUnavailable = errors.New("summarizer unavailable")
	ErrInferenceTimeout    = errors.New("summarizer timeout")
	ErrInvalidResponse     = errors.New("summarizer returned invalid response")
)
