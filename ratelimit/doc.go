// Package ratelimit implements the admission-control stack from spec §4.2–
// §4.6: a per-provider token bucket, a 60-second sliding window, a spike
// detector that adaptively throttles and restores effective RPM, a
// process-wide FIFO concurrency gate, and the RateGate composite that
// serializes all three admission checks in the contracted order (Global
// Gate → Sliding Window → Token Bucket).
package ratelimit
