package common

import "fmt"

var (
	ErrEmptyBatchError      = fmt.Errorf("batch contains no urls")
	ErrNotAnImageError      = fmt.Errorf("not an image file")
	ErrEmptyPayloadError    = fmt.Errorf("empty payload")
	ErrBodyTooLargeError    = fmt.Errorf("response body exceeds size cap")
	ErrAllStrategiesFailed  = fmt.Errorf("all fetch strategies failed")
	ErrRasterizationError   = fmt.Errorf("cannot rasterize svg markup")
	ErrUnknownIdentityError = fmt.Errorf("cannot resolve identity")
)

// QuotaExceededError rejects a whole batch before any fetch. Carries the
// ledger snapshot so the caller can display it.
type QuotaExceededError struct {
	Current   int64
	Remaining int64
	Limit     int64
	Requested int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily quota exceeded: requested %d, remaining %d of %d", e.Requested, e.Remaining, e.Limit)
}

// RequestTooLargeError rejects a batch whose url count exceeds the per-tier
// request cap. Checked before the quota, so no partial batch is attempted.
type RequestTooLargeError struct {
	Cap      int
	Received int
}

func (e *RequestTooLargeError) Error() string {
	return fmt.Sprintf("too many urls in request: got %d, cap is %d", e.Received, e.Cap)
}
