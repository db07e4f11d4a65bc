/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package connection waits for DID exchange handshakes started by an out-of-band invitation
// to complete, and holds the relationship established by the last successful wait.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-faber-go/pkg/race"
	"github.com/hyperledger/aries-faber-go/pkg/runtime"
)

var logger = log.New("aries-faber/connection")

const eventBuffer = 16

var (
	// ErrNotCompleted is returned when a record was found but the handshake did not complete
	// within the completion timeout.
	ErrNotCompleted = errors.New("connection did not complete")
	// ErrBusy is returned when a wait is already outstanding.
	ErrBusy = errors.New("a connection wait is already in progress")
	// ErrMissingCorrelationID is returned for an empty correlation id.
	ErrMissingCorrelationID = errors.New("missing correlation id")
)

// Provider is the runtime surface the waiter needs.
type Provider interface {
	runtime.Subscriber
	FindByCorrelationID(ctx context.Context, correlationID string) (*runtime.Record, error)
	WaitUntilState(ctx context.Context, connectionID string, state runtime.State) (*runtime.Record, error)
}

// Waiter detects handshake completion for one correlation id at a time.
type Waiter struct {
	provider   Provider
	completion time.Duration

	lock      sync.Mutex
	busy      bool
	completed map[string]*runtime.Record
	current   *runtime.Record
}

// NewWaiter returns a waiter that bounds the post-discovery completion wait by completion.
func NewWaiter(p Provider, completion time.Duration) *Waiter {
	return &Waiter{
		provider:   p,
		completion: completion,
		completed:  make(map[string]*runtime.Record),
	}
}

// WaitForConnection resolves the relationship record for correlationID, either from an
// existing record or from the first matching didexchange notification, then blocks until
// the runtime reports it completed. Repeated calls after success return the same record.
func (w *Waiter) WaitForConnection(ctx context.Context, correlationID string,
	deadline time.Duration) (*runtime.Record, error) {
	if correlationID == "" {
		return nil, ErrMissingCorrelationID
	}

	w.lock.Lock()

	if rec, ok := w.completed[correlationID]; ok {
		w.lock.Unlock()

		return rec, nil
	}

	if w.busy {
		w.lock.Unlock()

		return nil, ErrBusy
	}

	w.busy = true
	w.lock.Unlock()

	defer func() {
		w.lock.Lock()
		w.busy = false
		w.lock.Unlock()
	}()

	found, err := race.First(ctx, w.source(), matchCorrelation(correlationID), w.probe(correlationID), deadline)
	if err != nil {
		return nil, err
	}

	logger.Debugf("record %s found for correlation id %s in state %s", found.ConnectionID, correlationID, found.State)

	rec, err := w.awaitCompleted(ctx, found)
	if err != nil {
		return nil, err
	}

	w.lock.Lock()
	w.completed[correlationID] = rec
	w.current = rec
	w.lock.Unlock()

	return rec, nil
}

// Connection returns the relationship established by the last successful wait.
func (w *Waiter) Connection() (*runtime.Record, bool) {
	w.lock.Lock()
	defer w.lock.Unlock()

	return w.current, w.current != nil
}

func (w *Waiter) awaitCompleted(ctx context.Context, found *runtime.Record) (*runtime.Record, error) {
	waitCtx, cancel := context.WithTimeout(ctx, w.completion)
	defer cancel()

	rec, err := w.provider.WaitUntilState(waitCtx, found.ConnectionID, runtime.StateCompleted)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		logger.Warnf("connection %s not completed: %s", found.ConnectionID, err)

		return nil, fmt.Errorf("%w: %s", ErrNotCompleted, err)
	}

	if rec.CorrelationID == "" {
		rec.CorrelationID = found.CorrelationID
	}

	return rec, nil
}

func (w *Waiter) source() race.Source[runtime.Event] {
	return func() (<-chan runtime.Event, func(), error) {
		return runtime.Listen(w.provider, runtime.ConnectionTopic, eventBuffer)
	}
}

func (w *Waiter) probe(correlationID string) race.Probe[*runtime.Record] {
	return func(ctx context.Context) (*runtime.Record, bool, error) {
		rec, err := w.provider.FindByCorrelationID(ctx, correlationID)
		if errors.Is(err, runtime.ErrRecordNotFound) {
			return nil, false, nil
		}

		if err != nil {
			return nil, false, err
		}

		return rec, rec != nil, nil
	}
}

func matchCorrelation(correlationID string) race.Match[runtime.Event, *runtime.Record] {
	return func(e runtime.Event) (*runtime.Record, bool) {
		if e.CorrelationID != correlationID || e.ConnectionID == "" {
			return nil, false
		}

		return &runtime.Record{
			ConnectionID:  e.ConnectionID,
			CorrelationID: e.CorrelationID,
			State:         runtime.State(e.StateID),
			TheirDID:      e.TheirDID,
			UpdatedAt:     time.Now(),
		}, true
	}
}
