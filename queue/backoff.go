package queue

import (
	"math/rand"
	"time"
)

const (
	backoffBase   = 100 * time.Millisecond
	backoffFactor = 2
	backoffCap    = 30 * time.Second
)

// retryBackoff returns the wait before re-queuing a failed job. The delay
// doubles per retry from the base up to the cap, with up to 25% random
// jitter so simultaneously failing jobs do not retry in lockstep.
func retryBackoff(retries int) time.Duration {
	delay := backoffBase
	for i := 0; i < retries; i++ {
		delay *= backoffFactor
		if delay >= backoffCap {
			delay = backoffCap
			break
		}
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	delay += jitter
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}
