package logevents

import "time"

// Event is one shipped log line: the unit the reconstructor consumes.
// Timestamps arrive in milliseconds from the shipping side.
type Event struct {
	ID          int64  `json:"id"`
	LogGroup    string `json:"log_group"`
	LogStream   string `json:"log_stream"`
	TimestampMS int64  `json:"timestamp"`
	Message     string `json:"message"`

	CreatedAt time.Time `json:"created_at"`
}

func (e *Event) Timestamp() time.Time {
	return time.UnixMilli(e.TimestampMS).UTC()
}

type Filter struct {
	LogGroup string
	Since    time.Time
	Until    time.Time
	Limit    int
}
