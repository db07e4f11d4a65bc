/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package prompt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mockruntime "github.com/hyperledger/aries-faber-go/pkg/internal/mock/runtime"
	"github.com/hyperledger/aries-faber-go/pkg/runtime"
)

const piid = "piid-1"

// pristineConfirmer never gets an answer and gives up as soon as it is cancelled.
type pristineConfirmer struct{}

func (pristineConfirmer) Confirm(ctx context.Context, _ string) (bool, error) {
	<-ctx.Done()

	return false, ctx.Err()
}

// answerConfirmer answers immediately.
type answerConfirmer struct {
	yes bool
	err error
}

func (c answerConfirmer) Confirm(context.Context, string) (bool, error) {
	return c.yes, c.err
}

// typingConfirmer models an operator mid-keystroke: cancellation is ignored until submit.
type typingConfirmer struct {
	started chan struct{}
	submit  chan bool
}

func (c *typingConfirmer) Confirm(context.Context, string) (bool, error) {
	close(c.started)

	return <-c.submit, nil
}

func issuanceEvent(id, state string) runtime.Event {
	return runtime.Event{Topic: runtime.IssuanceTopic, PIID: id, StateID: state}
}

func TestHold_Await(t *testing.T) {
	t.Run("notification resolves the hold", func(t *testing.T) {
		rt := &mockruntime.Runtime{}
		m := New(rt, pristineConfirmer{})

		h, err := m.Hold(runtime.IssuanceTopic)
		require.NoError(t, err)
		require.True(t, m.Holding())

		go func() {
			time.Sleep(20 * time.Millisecond)
			rt.Publish(issuanceEvent("other", runtime.IssuanceRequestReceived))
			rt.Publish(issuanceEvent(piid, runtime.IssuanceOfferSent))
			rt.Publish(issuanceEvent(piid, runtime.IssuanceRequestReceived))
		}()

		o, err := h.Await(context.Background(), "Is the credential offer accepted?", piid, time.Second)
		require.NoError(t, err)
		require.Equal(t, Accepted, o.Verdict)
		require.True(t, o.Observed)
		require.Equal(t, runtime.IssuanceRequestReceived, o.StateID)
		require.Equal(t, Resolved, m.State())
		require.Zero(t, rt.Active())

		last, ok := m.Last()
		require.True(t, ok)
		require.Same(t, o, last)
	})

	t.Run("notification sent before await is buffered", func(t *testing.T) {
		rt := &mockruntime.Runtime{}
		m := New(rt, pristineConfirmer{})

		h, err := m.Hold(runtime.ProofTopic)
		require.NoError(t, err)

		rt.Publish(runtime.Event{Topic: runtime.ProofTopic, PIID: piid, StateID: runtime.ProofPresentationRecv})

		o, err := h.Await(context.Background(), "Is the proof request accepted?", piid, time.Second)
		require.NoError(t, err)
		require.Equal(t, Accepted, o.Verdict)
	})

	t.Run("abandoned protocol is declined", func(t *testing.T) {
		rt := &mockruntime.Runtime{}
		m := New(rt, pristineConfirmer{})

		h, err := m.Hold(runtime.IssuanceTopic)
		require.NoError(t, err)

		rt.Publish(issuanceEvent(piid, runtime.ProtocolAbandoned))

		o, err := h.Await(context.Background(), "title", piid, time.Second)
		require.NoError(t, err)
		require.Equal(t, Declined, o.Verdict)
	})

	t.Run("operator answers", func(t *testing.T) {
		for _, tc := range []struct {
			yes     bool
			verdict Verdict
		}{{true, Accepted}, {false, Declined}} {
			m := New(&mockruntime.Runtime{}, answerConfirmer{yes: tc.yes})

			h, err := m.Hold(runtime.IssuanceTopic)
			require.NoError(t, err)

			o, err := h.Await(context.Background(), "title", piid, time.Second)
			require.NoError(t, err)
			require.Equal(t, tc.verdict, o.Verdict)
			require.False(t, o.Observed)
		}
	})

	t.Run("prompt error", func(t *testing.T) {
		m := New(&mockruntime.Runtime{}, answerConfirmer{err: errors.New("stdin closed")})

		h, err := m.Hold(runtime.IssuanceTopic)
		require.NoError(t, err)

		_, err = h.Await(context.Background(), "title", piid, time.Second)
		require.EqualError(t, err, "stdin closed")
		require.Equal(t, Idle, m.State())
	})

	t.Run("timeout", func(t *testing.T) {
		rt := &mockruntime.Runtime{}
		m := New(rt, pristineConfirmer{})

		h, err := m.Hold(runtime.IssuanceTopic)
		require.NoError(t, err)

		o, err := h.Await(context.Background(), "title", piid, 10*time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, TimedOut, o.Verdict)
		require.Zero(t, rt.Active())
	})

	t.Run("exit takes precedence", func(t *testing.T) {
		rt := &mockruntime.Runtime{}
		m := New(rt, pristineConfirmer{})

		h, err := m.Hold(runtime.IssuanceTopic)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())

		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err = h.Await(ctx, "title", piid, time.Second)
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, Idle, m.State())
		require.Zero(t, rt.Active())
	})

	t.Run("resumption waits for an in-flight answer", func(t *testing.T) {
		rt := &mockruntime.Runtime{}
		c := &typingConfirmer{started: make(chan struct{}), submit: make(chan bool)}
		m := New(rt, c)

		h, err := m.Hold(runtime.IssuanceTopic)
		require.NoError(t, err)

		done := make(chan *Outcome, 1)

		go func() {
			o, _ := h.Await(context.Background(), "title", piid, time.Second) //nolint:errcheck
			done <- o
		}()

		<-c.started
		rt.Publish(issuanceEvent(piid, runtime.IssuanceRequestReceived))

		select {
		case <-done:
			t.Fatal("await returned while the operator was typing")
		case <-time.After(50 * time.Millisecond):
		}

		require.True(t, m.Holding())

		c.submit <- false

		o := <-done
		require.NotNil(t, o)
		require.Equal(t, Accepted, o.Verdict)
		require.True(t, o.Observed)
	})
}

func TestMachine_Hold(t *testing.T) {
	t.Run("one hold at a time", func(t *testing.T) {
		rt := &mockruntime.Runtime{}
		m := New(rt, pristineConfirmer{})
		require.Equal(t, Idle, m.State())

		h, err := m.Hold(runtime.IssuanceTopic)
		require.NoError(t, err)

		_, err = m.Hold(runtime.ProofTopic)
		require.ErrorIs(t, err, ErrHolding)

		h.Release()
		h.Release()
		require.Equal(t, Idle, m.State())

		subscribed, unsubscribed := rt.Counts()
		require.Equal(t, 1, subscribed)
		require.Equal(t, 1, unsubscribed)
	})

	t.Run("subscribe error", func(t *testing.T) {
		m := New(&mockruntime.Runtime{SubscribeErr: errors.New("closed")}, pristineConfirmer{})

		_, err := m.Hold(runtime.IssuanceTopic)
		require.EqualError(t, err, "closed")
		require.Equal(t, Idle, m.State())
	})
}

func TestStrings(t *testing.T) {
	require.Equal(t, "holding", Holding.String())
	require.Equal(t, "timed out", TimedOut.String())
}
