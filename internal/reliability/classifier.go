package reliability

import "time"

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// KindForHTTPStatus maps a failed response status to an error kind when the
// body did not carry one.
func KindForHTTPStatus(code int) Kind {
	switch {
	case code == 408 || code == 504:
		return KindTimeout
	case IsRetryableHTTPStatus(code):
		return KindTransient
	case code >= 400 && code < 500:
		return KindBadRequest
	default:
		return KindInternal
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// RetryPolicy bounds automatic retries. A policy with MaxAttempts <= 0
// never retries.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// DefaultRetryPolicy is base 1s, factor 2, cap 30s, at most 5 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Base: time.Second, Cap: 30 * time.Second}
}

// Next reports the delay before the next attempt given how many attempts
// have already run, and whether another attempt is allowed.
func (p RetryPolicy) Next(attempts int) (time.Duration, bool) {
	if p.MaxAttempts <= 0 || attempts >= p.MaxAttempts {
		return 0, false
	}
	// attempts is 1 after the first failure, which should wait Base.
	return ExponentialBackoff(attempts-1, p.Base, p.Cap), true
}
