package detection

import "strings"

// RetryableSignatures is the allow-list of substrings that classify a
// detection failure as transient. Matching on free-text error messages is
// fragile; a structured error code from the service would be preferable, but
// this is the protocol the service speaks today. Keep the list in one place so
// a protocol change touches a single variable.
var RetryableSignatures = []string{
	"empty response body",
	"connection",
	"timeout",
	"timed out",
	"truncated",
	"unexpected eof",
	"malformed",
}

// IsRetryable reports whether err looks like a transient failure worth
// retrying with backoff. Structured service errors (a stove-off result is not
// an error at all) and unknown faults are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range RetryableSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
