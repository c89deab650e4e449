package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// dedupeKey computes hash(rule_id, token, bucket(timestamp, suppression)).
// Bucketing truncates the timestamp down to the suppression window's
// boundary so repeated firings within one window collide onto the same key.
func dedupeKey(ruleID, token string, at time.Time, suppression time.Duration) string {
	bucket := bucketTimestamp(at, suppression)
	h := sha256.New()
	h.Write([]byte(ruleID))
	h.Write([]byte{0})
	h.Write([]byte(token))
	h.Write([]byte{0})
	h.Write([]byte(bucket.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))
}

func bucketTimestamp(at time.Time, window time.Duration) time.Time {
	if window <= 0 {
		return at
	}
	return at.Truncate(window)
}
