/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package race resolves a wait to the first of a subscribed event, an immediate poll or a deadline.
package race

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when neither the poll nor an event resolved before the deadline.
var ErrTimeout = errors.New("timeout waiting for result")

// Source installs exactly one subscription and returns its channel together with the func
// that releases it.
type Source[E any] func() (<-chan E, func(), error)

// Match reports whether an event resolves the wait and what it resolves to.
type Match[E, T any] func(E) (T, bool)

// Probe reads the current state once. A false result means nothing is resolved yet.
type Probe[T any] func(ctx context.Context) (T, bool, error)

// First subscribes through source, probes once, then waits for the first matching event.
// The subscription is released exactly once on every return path. The deadline window
// starts after the probe returns.
func First[E, T any](ctx context.Context, source Source[E], match Match[E, T], probe Probe[T],
	deadline time.Duration) (T, error) {
	var zero T

	events, release, err := source()
	if err != nil {
		return zero, fmt.Errorf("subscribe: %w", err)
	}

	defer release()

	if probe != nil {
		v, ok, err := probe(ctx)
		if err != nil {
			return zero, fmt.Errorf("probe: %w", err)
		}

		if ok {
			return v, nil
		}
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				// closed by the publisher, only the deadline or ctx can end the wait now
				events = nil

				continue
			}

			if v, hit := match(e); hit {
				return v, nil
			}
		case <-timer.C:
			return zero, ErrTimeout
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
