package domain

// TaskMessage travels on the primary bus stream. TaskID may be absent on
// messages produced by older publishers; consumers then resolve the newest
// pending task for the listing.
type TaskMessage struct {
	ListingID  int64  `json:"listing_id"`
	TaskID     *int64 `json:"task_id,omitempty"`
	RetryCount int    `json:"retry_count"`
}

// WithRetry returns a copy of m with the retry counter set to n.
func (m TaskMessage) WithRetry(n int) TaskMessage {
	m.RetryCount = n
	return m
}

// DeadLetter is the envelope published to the dead-letter stream once a
// message has exhausted its retry budget. Timestamp is RFC3339. RawPayload
// carries the verbatim stream entry when it could not be decoded into a
// TaskMessage, so operators can replay it without parsing the error text.
type DeadLetter struct {
	OriginalMessage TaskMessage `json:"original_message"`
	RawPayload      string      `json:"raw_payload,omitempty"`
	Error           string      `json:"error"`
	Timestamp       string      `json:"timestamp"`
	RetryCount      int         `json:"retry_count"`
}
