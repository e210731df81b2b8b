package cascade

import "errors"

var (
	ErrUnknownEntry      = errors.New("unknown entry")
	ErrLastEntry         = errors.New("at least one entry is required")
	ErrInvalidOption     = errors.New("option is not available")
	ErrNoCategory        = errors.New("no category selected")
	ErrNoModel           = errors.New("no model selected")
	ErrUnknownAttachment = errors.New("unknown attachment")
	ErrSubmitInProgress  = errors.New("submission already in progress")
	ErrClosed            = errors.New("controller closed")
)

const (
	LastEntryMessage       = "At least one model entry is required."
	RequiredFieldsMessage  = "Please fill in all required fields."
	SubmitSuccessMessage   = "Data saved successfully!"
	SubmitFailureMessage   = "Failed to save data. Please try again."
	TruncatedImagesMessage = "Maximum 10 images allowed. Keeping first 10 images."
	TooManyImagesMessage   = "Maximum 10 images allowed. Please select fewer images."
)

// ValidationError is a client-side rejection. Message is shown to the user
// as-is.
type ValidationError struct {
	Entry   int
	Fields  []string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
