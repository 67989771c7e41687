package retry

import (
	"fmt"
	"strconv"
	"time"

	"go-orders/internal/jsoncodec"
	"go-orders/pkg/models"
)

// DLQMetadata is the snapshot stored in the dlqMetadata header of a dead-lettered message.
type DLQMetadata struct {
	RetryCount    int    `json:"retryCount"`
	OriginalTopic string `json:"originalTopic"`
	Error         string `json:"error"`
	Timestamp     int64  `json:"timestamp"`
}

func (m DLQMetadata) Encode() (string, error) {
	data, err := jsoncodec.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode dlq metadata: %w", err)
	}
	return string(data), nil
}

// ParseDLQMetadata reads the dlqMetadata header back into its structured form.
func ParseDLQMetadata(headers map[string]string) (DLQMetadata, error) {
	var meta DLQMetadata
	raw, ok := headers[models.HeaderDLQMetadata]
	if !ok {
		return meta, fmt.Errorf("header %q not present", models.HeaderDLQMetadata)
	}
	if err := jsoncodec.Unmarshal([]byte(raw), &meta); err != nil {
		return meta, fmt.Errorf("decode dlq metadata: %w", err)
	}
	return meta, nil
}

// RetryHeaders builds the headers for the next hop on the retry topic.
func RetryHeaders(headers map[string]string, reason, originalTopic string, now time.Time) map[string]string {
	return models.MergeHeaders(headers, map[string]string{
		models.HeaderRetryCount:    strconv.Itoa(IncrementRetryCount(headers)),
		models.HeaderError:         reason,
		models.HeaderOriginalTopic: originalTopic,
		models.HeaderLastAttemptAt: strconv.FormatInt(now.UnixMilli(), 10),
	})
}

// DeadLetterHeaders builds the headers for a message routed to the dead-letter topic.
// The retry counter is recorded as-is.
func DeadLetterHeaders(headers map[string]string, reason, originalTopic string, now time.Time) (map[string]string, DLQMetadata, error) {
	meta := DLQMetadata{
		RetryCount:    ExtractRetryCount(headers),
		OriginalTopic: originalTopic,
		Error:         reason,
		Timestamp:     now.UnixMilli(),
	}
	encoded, err := meta.Encode()
	if err != nil {
		return nil, meta, err
	}
	return models.MergeHeaders(headers, map[string]string{
		models.HeaderDLQMetadata: encoded,
		models.HeaderFinalError:  reason,
	}), meta, nil
}
