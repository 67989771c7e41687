package models

import "time"

// Message represents a message in the system
type Message struct {
	Key       string            `json:"key"`
	Value     []byte            `json:"value"`
	Headers   map[string]string `json:"headers"`
	Topic     string            `json:"topic"`
	Partition int               `json:"partition"`
	Offset    int64             `json:"offset"`
	Timestamp time.Time         `json:"timestamp"`
}

// MessageHeader constants
const (
	HeaderMessageID     = "message-id"
	HeaderTimestamp     = "timestamp"
	HeaderRetryCount    = "retryCount"
	HeaderError         = "error"
	HeaderOriginalTopic = "originalTopic"
	HeaderLastAttemptAt = "lastAttemptAt"
	HeaderDLQMetadata   = "dlqMetadata"
	HeaderFinalError    = "finalError"
)

// CloneHeaders returns a copy of headers with room for extra entries.
func CloneHeaders(headers map[string]string, extra int) map[string]string {
	cloned := make(map[string]string, len(headers)+extra)
	for k, v := range headers {
		cloned[k] = v
	}
	return cloned
}

// MergeHeaders returns a new map holding base overlaid with entries.
// Neither argument is modified.
func MergeHeaders(base, entries map[string]string) map[string]string {
	merged := CloneHeaders(base, len(entries))
	for k, v := range entries {
		merged[k] = v
	}
	return merged
}
