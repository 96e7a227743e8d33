package crawler

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// Pauser blocks for a jittered interval between page interactions.
type Pauser interface {
	Pause(ctx context.Context, minDelay, maxDelay time.Duration)
}

// JitterPauser sleeps for a uniformly random duration in [min, max].
type JitterPauser struct{}

// Pause returns early when ctx is done.
func (JitterPauser) Pause(ctx context.Context, minDelay, maxDelay time.Duration) {
	delay := jitter(minDelay, maxDelay)
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func jitter(minDelay, maxDelay time.Duration) time.Duration {
	if maxDelay <= minDelay {
		return minDelay
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxDelay-minDelay)+1))
	if err != nil {
		return minDelay
	}
	return minDelay + time.Duration(n.Int64())
}

// NoPause never blocks.
type NoPause struct{}

// Pause implements Pauser.
func (NoPause) Pause(context.Context, time.Duration, time.Duration) {}
