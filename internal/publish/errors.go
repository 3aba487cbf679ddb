// Package publish creates posts on the connected platforms, including
// the chunked media upload some of them require before a post can
// reference an image.
package publish

import "fmt"

// Error is a post-creation failure. It is the only error class the
// publish retry loop treats as retryable.
type Error struct {
	Platform   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s publish failed: %s (status %d)", e.Platform, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s publish failed: %s", e.Platform, e.Message)
}

// UploadError is a media upload failure. Uploads abort immediately: the
// upload session on the platform side is gone, so retrying the same
// call cannot succeed. Payload carries the platform's response verbatim
// for diagnosis.
type UploadError struct {
	Platform string
	State    string
	Payload  string
}

func (e *UploadError) Error() string {
	if e.Payload != "" {
		return fmt.Sprintf("%s media upload failed during %s: %s", e.Platform, e.State, e.Payload)
	}
	return fmt.Sprintf("%s media upload failed during %s", e.Platform, e.State)
}
