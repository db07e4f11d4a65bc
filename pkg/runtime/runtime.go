/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package runtime declares the agent runtime surface a faber session is driven through:
// relationship records, protocol notifications and the outbound calls for invitations,
// credential offers, proof requests and basic messages.
package runtime

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRecordNotFound is returned when no relationship record exists for a lookup key.
var ErrRecordNotFound = errors.New("record not found")

// State of a relationship record.
type State string

// Relationship states in the order a DID exchange moves through them.
const (
	StateInvited   State = "invited"
	StateRequested State = "requested"
	StateResponded State = "responded"
	StateCompleted State = "completed"
	StateAbandoned State = "abandoned"
)

// Topic names a notification stream.
type Topic string

// Notification topics published by the agent.
const (
	ConnectionTopic Topic = "didexchange_states"
	IssuanceTopic   Topic = "issue-credential_states"
	ProofTopic      Topic = "present-proof_states"
	MessageTopic    Topic = "basicmessages"
)

// Protocol state ids carried by issuance and proof notifications.
const (
	IssuanceOfferSent        = "offer-sent"
	IssuanceRequestReceived  = "request-received"
	IssuanceCredentialIssued = "credential-issued"
	ProofRequestSent         = "request-sent"
	ProofPresentationRecv    = "presentation-received"
	ProtocolDone             = "done"
	ProtocolAbandoned        = "abandoned"
)

// Record is the runtime's view of a pairwise relationship.
type Record struct {
	ConnectionID  string
	CorrelationID string
	State         State
	TheirLabel    string
	MyDID         string
	TheirDID      string
	UpdatedAt     time.Time
}

// Completed reports whether the handshake reached its terminal state.
func (r *Record) Completed() bool {
	return r != nil && r.State == StateCompleted
}

// Event is a single notification received from the agent.
type Event struct {
	Topic         Topic
	StateID       string
	ProtocolName  string
	ConnectionID  string
	CorrelationID string
	PIID          string
	// Text holds the body of a basic message.
	Text     string
	TheirDID string
}

// Invitation is an out-of-band invitation either created by or handed to this agent.
type Invitation struct {
	// ID correlates the invitation with the relationship record created from it.
	ID  string
	URL string
	// ConnectionID is set when the agent already knows the record created from the invitation.
	ConnectionID string
}

// Attribute is a single claim in a credential preview.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CredentialOffer describes a credential offered over an established connection.
type CredentialOffer struct {
	ConnectionID           string
	ProtocolVersion        string
	CredentialDefinitionID string
	Attributes             []Attribute
}

// Restriction limits which credentials can satisfy a requested attribute or predicate.
type Restriction struct {
	CredDefID string `json:"cred_def_id,omitempty"`
}

// RequestedAttribute is an attribute the verifier asks the holder to reveal.
type RequestedAttribute struct {
	Name         string        `json:"name"`
	Restrictions []Restriction `json:"restrictions,omitempty"`
}

// RequestedPredicate is a predicate the holder proves without revealing the value.
type RequestedPredicate struct {
	Name         string        `json:"name"`
	PType        string        `json:"p_type"`
	PValue       int           `json:"p_value"`
	Restrictions []Restriction `json:"restrictions,omitempty"`
}

// ProofRequest describes a presentation request sent over an established connection.
type ProofRequest struct {
	ConnectionID        string
	ProtocolVersion     string
	Name                string
	Version             string
	RequestedAttributes map[string]RequestedAttribute
	RequestedPredicates map[string]RequestedPredicate
}

// Proof is a presentation received from a holder.
type Proof struct {
	ID           string            `json:"id"`
	PIID         string            `json:"piid"`
	ConnectionID string            `json:"connection_id"`
	Verified     bool              `json:"verified"`
	Revealed     map[string]string `json:"revealed_attrs"`
	Predicates   []string          `json:"predicates,omitempty"`
}

// Subscription is a live registration for one topic.
type Subscription interface {
	Unsubscribe()
}

// Subscriber registers channels for notification topics. Delivery never blocks the publisher,
// so subscribers must size their channel for the events they expect.
type Subscriber interface {
	Subscribe(topic Topic, ch chan<- Event) (Subscription, error)
}

// Runtime is the agent runtime a faber session talks to.
type Runtime interface {
	Subscriber
	CreateInvitation(ctx context.Context) (*Invitation, error)
	AcceptInvitation(ctx context.Context, url string) (*Invitation, error)
	FindByCorrelationID(ctx context.Context, correlationID string) (*Record, error)
	WaitUntilState(ctx context.Context, connectionID string, state State) (*Record, error)
	OfferCredential(ctx context.Context, offer *CredentialOffer) (string, error)
	RequestProof(ctx context.Context, request *ProofRequest) (string, error)
	ListProofs(ctx context.Context) ([]*Proof, error)
	SendMessage(ctx context.Context, connectionID, text string) error
	Close() error
}

// Listen subscribes a buffered channel to topic and returns it with an idempotent release func.
func Listen(s Subscriber, topic Topic, size int) (<-chan Event, func(), error) {
	ch := make(chan Event, size)

	sub, err := s.Subscribe(topic, ch)
	if err != nil {
		return nil, nil, err
	}

	var once sync.Once

	return ch, func() { once.Do(sub.Unsubscribe) }, nil
}
