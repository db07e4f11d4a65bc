/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package prompt holds the operator on an exchange flow until the counterparty responds, the
// operator answers, or the session is told to exit.
package prompt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-faber-go/pkg/runtime"
)

var logger = log.New("aries-faber/prompt")

const eventBuffer = 32

// ErrHolding is returned when a hold is requested while another one is open.
var ErrHolding = errors.New("already holding for a response")

// State of the machine.
type State int

const (
	// Idle means no flow is being held.
	Idle State = iota
	// Holding means a flow is suspended waiting for a response.
	Holding
	// Resolved means the last hold produced an outcome.
	Resolved
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Holding:
		return "holding"
	case Resolved:
		return "resolved"
	}

	return "unknown"
}

// Verdict is the resolution of a held flow.
type Verdict int

// Verdicts.
const (
	Accepted Verdict = iota
	Declined
	TimedOut
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case Declined:
		return "declined"
	case TimedOut:
		return "timed out"
	}

	return "unknown"
}

// Outcome is what resolved a hold.
type Outcome struct {
	Verdict Verdict
	// Observed is true when an agent notification resolved the hold, false when the operator
	// answered or the timeout fired.
	Observed bool
	StateID  string
}

// Confirmer asks the operator a yes/no question. Implementations may only honour ctx
// cancellation while the operator has not started typing an answer.
type Confirmer interface {
	Confirm(ctx context.Context, title string) (bool, error)
}

// Machine bridges protocol notifications into the operator's decision point.
type Machine struct {
	subscriber runtime.Subscriber
	confirmer  Confirmer

	lock  sync.Mutex
	state State
	last  *Outcome
}

// New returns an idle machine.
func New(s runtime.Subscriber, c Confirmer) *Machine {
	return &Machine{subscriber: s, confirmer: c}
}

// State returns the current state. It never blocks on a held flow.
func (m *Machine) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.state
}

// Holding reports whether a flow is currently held.
func (m *Machine) Holding() bool {
	return m.State() == Holding
}

// Last returns the outcome of the most recent hold.
func (m *Machine) Last() (*Outcome, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.last, m.last != nil
}

// Hold subscribes to topic before the flow message is sent, so a response that races the send
// is buffered rather than lost.
func (m *Machine) Hold(topic runtime.Topic) (*Hold, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.state == Holding {
		return nil, ErrHolding
	}

	events, release, err := runtime.Listen(m.subscriber, topic, eventBuffer)
	if err != nil {
		return nil, err
	}

	m.state = Holding

	return &Hold{machine: m, topic: topic, events: events, release: release}, nil
}

func (m *Machine) settle(o *Outcome) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if o != nil {
		m.state = Resolved
		m.last = o

		return
	}

	m.state = Idle
}

// Hold is one open suspension.
type Hold struct {
	machine *Machine
	topic   runtime.Topic
	events  <-chan runtime.Event
	release func()
	once    sync.Once
}

// Release drops the subscription. A hold released without Await returns the machine to Idle.
func (h *Hold) Release() {
	h.finish(nil)
}

func (h *Hold) finish(o *Outcome) {
	h.once.Do(func() {
		h.release()
		h.machine.settle(o)
	})
}

type answer struct {
	yes bool
	err error
}

// Await asks the operator title and waits for the first of: a notification for piid that
// carries a terminal protocol state, the operator's answer, or timeout. Cancelling ctx unwinds
// the hold; the operator prompt is always joined before Await returns.
func (h *Hold) Await(ctx context.Context, title, piid string, timeout time.Duration) (*Outcome, error) {
	promptCtx, cancelPrompt := context.WithCancel(ctx)
	answers := make(chan answer, 1)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		yes, err := h.machine.confirmer.Confirm(promptCtx, title)
		answers <- answer{yes: yes, err: err}
	}()

	outcome, err := h.wait(ctx, answers, piid, timeout)

	// an operator already typing keeps the prompt until they submit
	cancelPrompt()
	wg.Wait()

	h.finish(outcome)

	return outcome, err
}

func (h *Hold) wait(ctx context.Context, answers <-chan answer, piid string,
	timeout time.Duration) (*Outcome, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case e := <-h.events:
			if piid != "" && e.PIID != piid {
				continue
			}

			verdict, ok := verdictFor(h.topic, e.StateID)
			if !ok {
				logger.Debugf("ignoring %s state %s for %s", h.topic, e.StateID, e.PIID)

				continue
			}

			return &Outcome{Verdict: verdict, Observed: true, StateID: e.StateID}, nil
		case a := <-answers:
			if a.err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}

				return nil, a.err
			}

			if a.yes {
				return &Outcome{Verdict: Accepted}, nil
			}

			return &Outcome{Verdict: Declined}, nil
		case <-timer.C:
			return &Outcome{Verdict: TimedOut}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func verdictFor(topic runtime.Topic, stateID string) (Verdict, bool) {
	if stateID == runtime.ProtocolAbandoned {
		return Declined, true
	}

	switch topic { //nolint:exhaustive
	case runtime.IssuanceTopic:
		switch stateID {
		case runtime.IssuanceRequestReceived, runtime.IssuanceCredentialIssued, runtime.ProtocolDone:
			return Accepted, true
		}
	case runtime.ProofTopic:
		switch stateID {
		case runtime.ProofPresentationRecv, runtime.ProtocolDone:
			return Accepted, true
		}
	}

	return 0, false
}
