package entity

import "time"

// LimitUnbounded is the limit sentinel for tiers without a daily cap.
const LimitUnbounded = -1

// QuotaRecord holds the daily counter for one identity key. DailyCount is
// only meaningful together with WindowStart: a record whose window lies on a
// prior UTC day counts as zero and must be reset before any limit check.
type QuotaRecord struct {
	DailyCount  uint64
	WindowStart time.Time
}

// QuotaStatus is the outcome of a ledger check.
type QuotaStatus struct {
	Allowed   bool  `json:"allowed"`
	Current   int64 `json:"current"`
	Remaining int64 `json:"remaining"`
	Limit     int64 `json:"limit"`
}

// WindowStart returns the UTC midnight of the day t falls on.
func WindowStart(t time.Time) time.Time {
	t = t.UTC()

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
