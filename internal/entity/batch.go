package entity

import "encoding/json"

type OutcomeStatus int

const (
	StatusSuccess OutcomeStatus = iota
	StatusFailed
)

func (s OutcomeStatus) String() string {
	if s == StatusSuccess {
		return "success"
	}

	return "failed"
}

func (s OutcomeStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Error kinds for per-URL failures. Batch-level rejections (quota, request
// cap) are typed errors in internal/common and never appear here.
const (
	ErrKindFetchFailed    = "fetch_failed"
	ErrKindInvalidContent = "invalid_content"
	ErrKindEmptyContent   = "empty_content"
	ErrKindRasterization  = "rasterization_failed"
)

// DownloadRequest is one immutable batch submission.
type DownloadRequest struct {
	URLs     []string
	Identity Identity
}

// RawResponse is what a fetch strategy yields before classification.
type RawResponse struct {
	Body        []byte
	ContentType string
	FinalURL    string
}

// FetchOutcome is the per-URL result. Produced once by the orchestrator and
// immutable afterwards.
type FetchOutcome struct {
	URL           string        `json:"url"`
	Status        OutcomeStatus `json:"status"`
	Filename      string        `json:"filename,omitempty"`
	ByteSize      int           `json:"byte_size,omitempty"`
	MIMEType      string        `json:"mime_type,omitempty"`
	Payload       []byte        `json:"payload,omitempty"`
	WasRasterized bool          `json:"was_rasterized,omitempty"`
	ErrorKind     string        `json:"error,omitempty"`
}

type Summary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type BatchResult struct {
	BatchID string         `json:"batch_id"`
	Results []FetchOutcome `json:"results"`
	Summary Summary        `json:"summary"`
}
