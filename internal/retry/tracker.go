package retry

import (
	"strconv"
	"strings"

	"go-orders/pkg/models"
)

// ExtractRetryCount reads the retry counter from message headers.
// Missing, malformed or negative values count as "never retried".
func ExtractRetryCount(headers map[string]string) int {
	raw, ok := headers[models.HeaderRetryCount]
	if !ok {
		return 0
	}
	count, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || count < 0 {
		return 0
	}
	return count
}

// IncrementRetryCount returns the retry counter for the next attempt.
func IncrementRetryCount(headers map[string]string) int {
	return ExtractRetryCount(headers) + 1
}
