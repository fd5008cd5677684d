package loader

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrLoadTimeout = errors.New("document did not become ready")

type LoadTimeoutError struct {
	URL     string
	Elapsed time.Duration
}

func (e *LoadTimeoutError) Error() string {
	return fmt.Sprintf("%s: %s after %s", ErrLoadTimeout, e.URL, e.Elapsed.Round(time.Millisecond))
}

func (e *LoadTimeoutError) Unwrap() error {
	return ErrLoadTimeout
}

// readiness is one observation of a loading page.
type readiness struct {
	RootChildren int
	DOMSize      int
}

type probeFunc func(ctx context.Context) (readiness, error)

// waitReady polls probe until the root container has children and the DOM
// size has not changed for quiet, or until timeout elapses.
func waitReady(ctx context.Context, url string, probe probeFunc, timeout, quiet, poll time.Duration) error {
	start := time.Now()
	lastSize := -1
	var stableSince time.Time

	for {
		r, err := probe(ctx)
		now := time.Now()
		switch {
		case err != nil || r.RootChildren == 0:
			lastSize = -1
		case r.DOMSize != lastSize:
			lastSize = r.DOMSize
			stableSince = now
		case now.Sub(stableSince) >= quiet:
			return nil
		}

		if elapsed := now.Sub(start); elapsed >= timeout {
			return &LoadTimeoutError{URL: url, Elapsed: elapsed}
		}

		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
