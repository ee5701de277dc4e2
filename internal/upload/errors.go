package upload

import "fmt"

// ValidationError reports a file rejected by the selection policy. Nothing
// was uploaded and no preview handle exists for it.
type ValidationError struct {
	File   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.File == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

// UploadError reports a failed upload. No durable URL exists for the file.
type UploadError struct {
	File  string
	Phase string
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading %s (%s): %v", e.File, e.Phase, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
