/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package exchange drives the credential issuance and proof request flows of a faber agent.
//
// A flow moves Idle -> PrerequisitesResolving -> Sent -> AwaitingOutcome and ends Accepted,
// Declined or TimedOut. Prerequisites (schema and credential definition) are registered the
// first time a credential is offered and cached for the life of the controller. Nothing is
// retried: a failed or declined flow has to be started again by the operator.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-faber-go/pkg/ledger"
	"github.com/hyperledger/aries-faber-go/pkg/prompt"
	"github.com/hyperledger/aries-faber-go/pkg/runtime"
)

var logger = log.New("aries-faber/exchange")

const (
	protocolVersion   = "v2"
	schemaNamePrefix  = "Faber College"
	schemaVersion     = "1.0.0"
	credDefTag        = "latest"
	proofRequestName  = "proof-request"
	proofRequestVer   = "1.0"
	minimumAge        = 21
	defaultOutcomeTTL = 5 * time.Minute

	// IssuanceTitle is the question shown while an offer is pending.
	IssuanceTitle = "Is the credential offer accepted?"
	// ProofTitle is the question shown while a proof request is pending.
	ProofTitle = "Is the proof request accepted?"
)

// SchemaAttributes are the attribute names of the issued credential.
var SchemaAttributes = []string{"name", "degree", "age"} //nolint:gochecknoglobals

// Kind of flow.
type Kind int

// Flow kinds.
const (
	Issuance Kind = iota
	ProofRequest
)

func (k Kind) String() string {
	if k == Issuance {
		return "issuance"
	}

	return "proof request"
}

// State of a flow.
type State int

// Flow states.
const (
	Idle State = iota
	PrerequisitesResolving
	Sent
	AwaitingOutcome
	Accepted
	Declined
	TimedOut
)

var stateNames = map[State]string{ //nolint:gochecknoglobals
	Idle:                   "idle",
	PrerequisitesResolving: "prerequisites-resolving",
	Sent:                   "sent",
	AwaitingOutcome:        "awaiting-outcome",
	Accepted:               "accepted",
	Declined:               "declined",
	TimedOut:               "timed-out",
}

func (s State) String() string {
	return stateNames[s]
}

// Terminal reports whether s ends a flow.
func (s State) Terminal() bool {
	return s == Accepted || s == Declined || s == TimedOut
}

// Runtime sends flow messages.
type Runtime interface {
	OfferCredential(ctx context.Context, offer *runtime.CredentialOffer) (string, error)
	RequestProof(ctx context.Context, request *runtime.ProofRequest) (string, error)
	ListProofs(ctx context.Context) ([]*runtime.Proof, error)
}

// Ledger registers flow prerequisites.
type Ledger interface {
	RegisterSchema(ctx context.Context, schema *ledger.Schema) (*ledger.SchemaState, error)
	RegisterCredentialDefinition(ctx context.Context,
		def *ledger.CredentialDefinition) (*ledger.CredentialDefinitionState, error)
}

// Connections gives access to the established relationship.
type Connections interface {
	Connection() (*runtime.Record, bool)
}

// Identity gives access to the published issuer DID.
type Identity interface {
	IssuerDID() (string, bool)
}

// Narrator renders flow progress for the operator.
type Narrator interface {
	Plain(msg string)
	Success(msg string)
	Notice(msg string)
}

// Config holds the controller collaborators.
type Config struct {
	Runtime        Runtime
	Ledger         Ledger
	Connections    Connections
	Identity       Identity
	Prompt         *prompt.Machine
	Narrator       Narrator
	OutcomeTimeout time.Duration
}

// Prerequisites are the ledger objects an issuance or proof request refers to.
type Prerequisites struct {
	IssuerDID              string
	SchemaID               string
	SchemaName             string
	CredentialDefinitionID string
}

// Result is the terminal state of a flow.
type Result struct {
	Kind    Kind
	PIID    string
	State   State
	Outcome *prompt.Outcome
}

// Controller runs one flow at a time.
type Controller struct {
	runtime     Runtime
	ledger      Ledger
	connections Connections
	identity    Identity
	prompt      *prompt.Machine
	narrator    Narrator
	timeout     time.Duration

	lock    sync.Mutex
	active  bool
	states  map[Kind]State
	prereqs *Prerequisites
}

// New returns a controller with both flows Idle.
func New(cfg *Config) *Controller {
	timeout := cfg.OutcomeTimeout
	if timeout <= 0 {
		timeout = defaultOutcomeTTL
	}

	return &Controller{
		runtime:     cfg.Runtime,
		ledger:      cfg.Ledger,
		connections: cfg.Connections,
		identity:    cfg.Identity,
		prompt:      cfg.Prompt,
		narrator:    cfg.Narrator,
		timeout:     timeout,
		states:      map[Kind]State{Issuance: Idle, ProofRequest: Idle},
	}
}

// State returns the current state of the flow kind.
func (c *Controller) State(kind Kind) State {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.states[kind]
}

// Busy reports whether a flow is in progress.
func (c *Controller) Busy() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.active
}

// Prerequisites returns the cached prerequisites.
func (c *Controller) Prerequisites() (*Prerequisites, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.prereqs, c.prereqs != nil
}

// IssueCredential offers the faber college credential to the connected holder and waits for
// the outcome.
func (c *Controller) IssueCredential(ctx context.Context) (*Result, error) {
	return c.run(ctx, Issuance, c.resolvePrerequisites, c.sendOffer)
}

// RequestProof asks the connected holder to prove its name and that its age is over 21, using
// a credential issued under the cached credential definition.
func (c *Controller) RequestProof(ctx context.Context) (*Result, error) {
	return c.run(ctx, ProofRequest, c.cachedPrerequisites, c.sendProofRequest)
}

// ListProofs returns the presentations received so far. It does not touch flow state.
func (c *Controller) ListProofs(ctx context.Context) ([]*runtime.Proof, error) {
	return c.runtime.ListProofs(ctx)
}

type (
	prepareFunc func(ctx context.Context) (*Prerequisites, error)
	sendFunc    func(ctx context.Context, conn *runtime.Record, p *Prerequisites) (string, error)
)

func (c *Controller) run(ctx context.Context, kind Kind, prepare prepareFunc, send sendFunc) (*Result, error) {
	if err := c.begin(kind); err != nil {
		return nil, err
	}

	defer c.end()

	conn, ok := c.connections.Connection()
	if !ok {
		return nil, ErrMissingConnection
	}

	prereqs, err := prepare(ctx)
	if err != nil {
		c.setState(kind, Idle)

		return nil, err
	}

	hold, err := c.prompt.Hold(topicOf(kind))
	if err != nil {
		c.setState(kind, Idle)

		return nil, err
	}

	defer hold.Release()

	piid, err := send(ctx, conn, prereqs)
	if err != nil {
		c.setState(kind, Idle)

		return nil, fmt.Errorf("send %s: %w", kind, err)
	}

	c.setState(kind, Sent)
	logger.Infof("%s %s sent to connection %s", kind, piid, conn.ConnectionID)

	c.setState(kind, AwaitingOutcome)

	outcome, err := hold.Await(ctx, titleOf(kind), piid, c.timeout)
	if err != nil {
		c.setState(kind, Idle)

		return nil, err
	}

	state := stateOf(outcome.Verdict)
	c.setState(kind, state)
	logger.Infof("%s %s %s", kind, piid, state)

	return &Result{Kind: kind, PIID: piid, State: state, Outcome: outcome}, nil
}

func (c *Controller) begin(kind Kind) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.active {
		return ErrFlowBusy
	}

	c.active = true
	c.states[kind] = Idle

	return nil
}

func (c *Controller) end() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.active = false
}

func (c *Controller) setState(kind Kind, s State) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.states[kind] = s
}

func (c *Controller) cachedPrerequisites(context.Context) (*Prerequisites, error) {
	p, ok := c.Prerequisites()
	if !ok {
		return nil, fmt.Errorf("%w: no credential definition registered, offer a credential first",
			ErrMissingPrerequisite)
	}

	return p, nil
}

func (c *Controller) resolvePrerequisites(ctx context.Context) (*Prerequisites, error) {
	if p, ok := c.Prerequisites(); ok {
		return p, nil
	}

	issuer, ok := c.identity.IssuerDID()
	if !ok {
		return nil, fmt.Errorf("%w: missing anoncreds issuer id, publish your DID first", ErrMissingPrerequisite)
	}

	c.setState(Issuance, PrerequisitesResolving)

	schema := &ledger.Schema{
		Name:      schemaNamePrefix + uuid.New().String(),
		Version:   schemaVersion,
		AttrNames: SchemaAttributes,
		IssuerID:  issuer,
	}

	c.narrator.Plain("\n\nThe credential definition will look like this:\n")
	c.narrator.Notice("Name: " + schema.Name)
	c.narrator.Notice("Version: " + schema.Version)
	c.narrator.Notice("Attributes: " + strings.Join(schema.AttrNames, ", ") + "\n")
	c.narrator.Success("\nRegistering schema...\n")

	schemaState, err := c.ledger.RegisterSchema(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRegistrationFailed, err)
	}

	c.narrator.Plain(fmt.Sprintf("\n%s Schema registered!\n", schemaState.SchemaID))
	c.narrator.Plain("\nRegistering credential definition...\n")

	defState, err := c.ledger.RegisterCredentialDefinition(ctx, &ledger.CredentialDefinition{
		SchemaID: schemaState.SchemaID,
		IssuerID: issuer,
		Tag:      credDefTag,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRegistrationFailed, err)
	}

	c.narrator.Plain(fmt.Sprintf("\n%s Credential definition registered!!\n", defState.CredentialDefinitionID))

	p := &Prerequisites{
		IssuerDID:              issuer,
		SchemaID:               schemaState.SchemaID,
		SchemaName:             schema.Name,
		CredentialDefinitionID: defState.CredentialDefinitionID,
	}

	c.lock.Lock()
	c.prereqs = p
	c.lock.Unlock()

	return p, nil
}

func (c *Controller) sendOffer(ctx context.Context, conn *runtime.Record, p *Prerequisites) (string, error) {
	c.narrator.Success("\nSending credential offer...\n")

	piid, err := c.runtime.OfferCredential(ctx, &runtime.CredentialOffer{
		ConnectionID:           conn.ConnectionID,
		ProtocolVersion:        protocolVersion,
		CredentialDefinitionID: p.CredentialDefinitionID,
		Attributes: []runtime.Attribute{
			{Name: "name", Value: "Alice Smith"},
			{Name: "degree", Value: "Computer Science"},
			{Name: "age", Value: "22"},
		},
	})
	if err != nil {
		return "", err
	}

	c.narrator.Plain("\nCredential offer sent!\n\nGo to the Alice agent to accept the credential offer\n")

	return piid, nil
}

func (c *Controller) sendProofRequest(ctx context.Context, conn *runtime.Record, p *Prerequisites) (string, error) {
	c.narrator.Success(fmt.Sprintf("Creating proof request for 'name' and 'age > %d'...\n", minimumAge))

	restrictions := []runtime.Restriction{{CredDefID: p.CredentialDefinitionID}}

	c.narrator.Success("\nRequesting proof...\n")

	piid, err := c.runtime.RequestProof(ctx, &runtime.ProofRequest{
		ConnectionID:    conn.ConnectionID,
		ProtocolVersion: protocolVersion,
		Name:            proofRequestName,
		Version:         proofRequestVer,
		RequestedAttributes: map[string]runtime.RequestedAttribute{
			"name": {Name: "name", Restrictions: restrictions},
		},
		RequestedPredicates: map[string]runtime.RequestedPredicate{
			"age": {Name: "age", PType: ">", PValue: minimumAge, Restrictions: restrictions},
		},
	})
	if err != nil {
		return "", err
	}

	c.narrator.Plain("\nProof request sent!\n\nGo to the Alice agent to accept the proof request\n")

	return piid, nil
}

func topicOf(kind Kind) runtime.Topic {
	if kind == Issuance {
		return runtime.IssuanceTopic
	}

	return runtime.ProofTopic
}

func titleOf(kind Kind) string {
	if kind == Issuance {
		return IssuanceTitle
	}

	return ProofTitle
}

func stateOf(v prompt.Verdict) State {
	switch v {
	case prompt.Accepted:
		return Accepted
	case prompt.Declined:
		return Declined
	default:
		return TimedOut
	}
}
