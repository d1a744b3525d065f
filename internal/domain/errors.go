package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrRollbackFailed marks a transaction whose rollback also failed, so
	// earlier statements may have persisted.
	ErrRollbackFailed = errors.New("rollback failed")
)

// Kind names a submission failure. Each kind has a stable numeric code that
// clients branch on.
type Kind int

const (
	KindMissingField Kind = iota + 1
	KindInvalidField
	KindImageFetchFailed
	KindNotAReceipt
	KindTextUnverifiable
	KindClinicNotFound
	KindAddressMismatch
	KindDatastoreError
	KindClassificationServiceError
	KindPartialWriteFailure
	KindRequestTimeout
	KindInternal
)

var kindInfo = map[Kind]struct {
	name     string
	code     int
	expected bool
	message  string
}{
	KindMissingField:               {"MissingField", 102, true, "required field is missing."},
	KindInvalidField:               {"InvalidField", 103, true, "request field is invalid."},
	KindImageFetchFailed:           {"ImageFetchFailed", 111, true, "receipt image could not be loaded."},
	KindNotAReceipt:                {"NotAReceipt", 112, true, "the image is not a receipt."},
	KindTextUnverifiable:           {"TextUnverifiable", 113, true, "Text could not be verified."},
	KindClinicNotFound:             {"ClinicNotFound", 114, true, "clinic not found."},
	KindAddressMismatch:            {"AddressMismatch", 115, true, "receipt address does not match the clinic."},
	KindDatastoreError:             {"DatastoreError", 201, false, "An error occurred while executing the query."},
	KindClassificationServiceError: {"ClassificationServiceError", 202, false, "An error occurred while verifying the receipt."},
	KindPartialWriteFailure:        {"PartialWriteFailure", 203, false, "An error occurred while saving the review."},
	KindRequestTimeout:             {"RequestTimeout", 204, false, "The request timed out."},
	KindInternal:                   {"Internal", 205, false, "An internal error occurred."},
}

func (k Kind) String() string {
	if i, ok := kindInfo[k]; ok {
		return i.name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Code is the client-facing error code. No kind uses 0.
func (k Kind) Code() int { return kindInfo[k].code }

// Expected reports whether the kind is a validation or business-rule outcome
// rather than a server fault.
func (k Kind) Expected() bool { return kindInfo[k].expected }

// Message is the user-facing text. Unexpected kinds share flat messages.
func (k Kind) Message() string { return kindInfo[k].message }

// SubmissionError is the only error type returned by the submission pipeline.
type SubmissionError struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *SubmissionError) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func NewError(k Kind, detail string) *SubmissionError {
	return &SubmissionError{Kind: k, Detail: detail}
}

func WrapError(k Kind, err error, detail string) *SubmissionError {
	return &SubmissionError{Kind: k, Detail: detail, Err: err}
}

// KindOf extracts the kind from err. Unknown errors are datastore errors.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return 0, false
	}
	var se *SubmissionError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return KindDatastoreError, false
}
