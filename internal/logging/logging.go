package logging

import (
	"encoding/json"
	"log"
	"time"
)

type Fields struct {
	Service    string `json:"service"`
	RequestID  string `json:"request_id,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
	OrderID    int64  `json:"order_id,omitempty"`
	Step       string `json:"step,omitempty"`
	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Log writes one JSON line through the standard logger.
func Log(f Fields) {
	payload := struct {
		Fields
		Timestamp string `json:"timestamp"`
	}{f, time.Now().UTC().Format(time.RFC3339Nano)}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("{\"service\":%q,\"status\":\"log_error\",\"error\":%q}", f.Service, err.Error())
		return
	}
	log.Print(string(data))
}

// Since returns the elapsed milliseconds, for Fields.DurationMS.
func Since(start time.Time) int64 { return time.Since(start).Milliseconds() }
