/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package runtime

import (
	"context"
	"sync"

	"github.com/hyperledger/aries-faber-go/pkg/runtime"
)

// Runtime mocks the agent runtime. It keeps subscriptions in memory, counts
// subscribe/unsubscribe calls and records every outbound message.
type Runtime struct {
	InvitationValue *runtime.Invitation
	InvitationErr   error
	AcceptValue     *runtime.Invitation
	AcceptErr       error
	FindValue       *runtime.Record
	FindErr         error
	// FindFunc overrides FindValue and FindErr when set.
	FindFunc      func(correlationID string) (*runtime.Record, error)
	WaitValue     *runtime.Record
	WaitErr       error
	WaitFunc      func(ctx context.Context, connectionID string, state runtime.State) (*runtime.Record, error)
	OfferPIID     string
	OfferErr      error
	RequestPIID   string
	RequestErr    error
	ProofsValue   []*runtime.Proof
	ProofsErr     error
	SendErr       error
	SubscribeErr  error
	CloseErr      error
	OnOffer       func(offer *runtime.CredentialOffer)
	OnRequest     func(request *runtime.ProofRequest)
	SentMessages  []string
	Offers        []*runtime.CredentialOffer
	Requests      []*runtime.ProofRequest
	Subscribed    int
	Unsubscribed  int
	FindCalls     int
	Closed        bool
	subscriptions map[int]*subscription
	nextID        int
	lock          sync.Mutex
}

type subscription struct {
	topic runtime.Topic
	ch    chan<- runtime.Event
}

type unsubscriber struct {
	rt *Runtime
	id int
}

func (u *unsubscriber) Unsubscribe() {
	u.rt.lock.Lock()
	defer u.rt.lock.Unlock()

	if _, ok := u.rt.subscriptions[u.id]; !ok {
		return
	}

	delete(u.rt.subscriptions, u.id)
	u.rt.Unsubscribed++
}

// Subscribe registers ch for topic.
func (r *Runtime) Subscribe(topic runtime.Topic, ch chan<- runtime.Event) (runtime.Subscription, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.SubscribeErr != nil {
		return nil, r.SubscribeErr
	}

	if r.subscriptions == nil {
		r.subscriptions = make(map[int]*subscription)
	}

	r.nextID++
	r.subscriptions[r.nextID] = &subscription{topic: topic, ch: ch}
	r.Subscribed++

	return &unsubscriber{rt: r, id: r.nextID}, nil
}

// Publish delivers e to every subscriber of its topic without blocking.
func (r *Runtime) Publish(e runtime.Event) {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, sub := range r.subscriptions {
		if sub.topic != e.Topic {
			continue
		}

		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Active returns the number of live subscriptions.
func (r *Runtime) Active() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.subscriptions)
}

// Counts returns the subscribe and unsubscribe totals.
func (r *Runtime) Counts() (int, int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.Subscribed, r.Unsubscribed
}

// CreateInvitation mocks invitation creation.
func (r *Runtime) CreateInvitation(context.Context) (*runtime.Invitation, error) {
	return r.InvitationValue, r.InvitationErr
}

// AcceptInvitation mocks invitation acceptance.
func (r *Runtime) AcceptInvitation(context.Context, string) (*runtime.Invitation, error) {
	return r.AcceptValue, r.AcceptErr
}

// FindByCorrelationID mocks record lookup.
func (r *Runtime) FindByCorrelationID(_ context.Context, correlationID string) (*runtime.Record, error) {
	r.lock.Lock()
	r.FindCalls++
	fn := r.FindFunc
	r.lock.Unlock()

	if fn != nil {
		return fn(correlationID)
	}

	if r.FindValue == nil && r.FindErr == nil {
		return nil, runtime.ErrRecordNotFound
	}

	return r.FindValue, r.FindErr
}

// WaitUntilState mocks state polling.
func (r *Runtime) WaitUntilState(ctx context.Context, connectionID string,
	state runtime.State) (*runtime.Record, error) {
	if r.WaitFunc != nil {
		return r.WaitFunc(ctx, connectionID, state)
	}

	return r.WaitValue, r.WaitErr
}

// OfferCredential records the offer.
func (r *Runtime) OfferCredential(_ context.Context, offer *runtime.CredentialOffer) (string, error) {
	r.lock.Lock()
	if r.OfferErr == nil {
		r.Offers = append(r.Offers, offer)
	}
	onOffer := r.OnOffer
	r.lock.Unlock()

	if r.OfferErr != nil {
		return "", r.OfferErr
	}

	if onOffer != nil {
		onOffer(offer)
	}

	return r.OfferPIID, nil
}

// RequestProof records the request.
func (r *Runtime) RequestProof(_ context.Context, request *runtime.ProofRequest) (string, error) {
	r.lock.Lock()
	if r.RequestErr == nil {
		r.Requests = append(r.Requests, request)
	}
	onRequest := r.OnRequest
	r.lock.Unlock()

	if r.RequestErr != nil {
		return "", r.RequestErr
	}

	if onRequest != nil {
		onRequest(request)
	}

	return r.RequestPIID, nil
}

// ListProofs mocks the proof book.
func (r *Runtime) ListProofs(context.Context) ([]*runtime.Proof, error) {
	return r.ProofsValue, r.ProofsErr
}

// SendMessage records the message text.
func (r *Runtime) SendMessage(_ context.Context, _, text string) error {
	if r.SendErr != nil {
		return r.SendErr
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.SentMessages = append(r.SentMessages, text)

	return nil
}

// Close drops every subscription.
func (r *Runtime) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.Closed = true

	for id := range r.subscriptions {
		delete(r.subscriptions, id)
		r.Unsubscribed++
	}

	return r.CloseErr
}
