/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package session runs the faber operator console. A Session owns everything created for one
// agent instance; the Loop replaces it wholesale on restart.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-faber-go/pkg/cli"
	"github.com/hyperledger/aries-faber-go/pkg/connection"
	"github.com/hyperledger/aries-faber-go/pkg/exchange"
	"github.com/hyperledger/aries-faber-go/pkg/internal/logutil"
	"github.com/hyperledger/aries-faber-go/pkg/ledger"
	"github.com/hyperledger/aries-faber-go/pkg/prompt"
	"github.com/hyperledger/aries-faber-go/pkg/race"
	"github.com/hyperledger/aries-faber-go/pkg/runtime"
	"github.com/hyperledger/aries-faber-go/pkg/wallet"
)

var logger = log.New("aries-faber/session")

const messageCancel = "q"

// Ledger is the ledger surface a session uses.
type Ledger interface {
	exchange.Ledger
	CreateDID(ctx context.Context) (*ledger.DIDState, error)
	ResolveDID(ctx context.Context, did string) (*ledger.Resolution, error)
	Balance(ctx context.Context, address string) (*ledger.Coin, error)
}

// Prompter asks the operator questions.
type Prompter interface {
	prompt.Confirmer
	Select(ctx context.Context, title string, options []string) (string, error)
	Input(ctx context.Context, title string) (string, error)
}

// Printer renders narration.
type Printer interface {
	exchange.Narrator
	Error(msg string)
	Banner(title string)
}

// Config holds per session settings.
type Config struct {
	Label             string
	Wallet            *wallet.Wallet
	ConnectionTimeout time.Duration
	CompletionTimeout time.Duration
	OutcomeTimeout    time.Duration
}

// Session is one agent instance with its waiter, prompt machine and flow controller.
type Session struct {
	cfg      *Config
	runtime  runtime.Runtime
	ledger   Ledger
	prompter Prompter
	printer  Printer
	waiter   *connection.Waiter
	machine  *prompt.Machine
	flows    *exchange.Controller

	lock      sync.Mutex
	issuerDID string

	stopMessages func()
	closeOnce    sync.Once
	closeErr     error
}

// New builds a session over an initialized runtime and starts printing incoming basic messages.
func New(cfg *Config, rt runtime.Runtime, l Ledger, p Prompter, out Printer) (*Session, error) {
	s := &Session{
		cfg:      cfg,
		runtime:  rt,
		ledger:   l,
		prompter: p,
		printer:  out,
		waiter:   connection.NewWaiter(rt, cfg.CompletionTimeout),
		machine:  prompt.New(rt, p),
	}

	s.flows = exchange.New(&exchange.Config{
		Runtime:        rt,
		Ledger:         l,
		Connections:    s.waiter,
		Identity:       s,
		Prompt:         s.machine,
		Narrator:       out,
		OutcomeTimeout: cfg.OutcomeTimeout,
	})

	stop, err := s.listenMessages()
	if err != nil {
		return nil, fmt.Errorf("listen for basic messages: %w", err)
	}

	s.stopMessages = stop

	return s, nil
}

// IssuerDID returns the DID published in this session.
func (s *Session) IssuerDID() (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.issuerDID, s.issuerDID != ""
}

// Connection returns the established relationship.
func (s *Session) Connection() (*runtime.Record, bool) {
	return s.waiter.Connection()
}

// Flows returns the exchange flow controller.
func (s *Session) Flows() *exchange.Controller {
	return s.flows
}

// PromptState returns the state of the accepted-prompt machine.
func (s *Session) PromptState() prompt.State {
	return s.machine.State()
}

// Close releases every subscription and shuts the runtime down.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.stopMessages()
		s.closeErr = s.runtime.Close()
	})

	return s.closeErr
}

func (s *Session) listenMessages() (func(), error) {
	events, release, err := runtime.Listen(s.runtime, runtime.MessageTopic, 16)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		for {
			select {
			case e, ok := <-events:
				if !ok {
					return
				}

				s.printer.Notice(fmt.Sprintf("\n%s received a message: %s\n", s.cfg.Label, e.Text))
			case <-done:
				return
			}
		}
	}()

	return func() {
		release()
		close(done)
		wg.Wait()
	}, nil
}

// PublishDID registers a cheqd DID and keeps it as the issuer id.
func (s *Session) PublishDID(ctx context.Context) error {
	funded, err := s.funded(ctx)
	if err != nil {
		return err
	}

	if !funded {
		s.printer.Notice(cli.GetTokens)

		return nil
	}

	state, err := s.ledger.CreateDID(ctx)
	if err != nil {
		return err
	}

	if state.DID == "" {
		s.printer.Error(cli.DIDRegistrationFailed)

		return nil
	}

	s.lock.Lock()
	s.issuerDID = state.DID
	s.lock.Unlock()

	logutil.LogInfo(logger, commandName, string(PublishDID), "issuer DID published",
		logutil.CreateKeyValueString("did", state.DID))

	s.printer.Success("DID: " + state.DID)

	return nil
}

// ResolveDID prints the document of the published DID.
func (s *Session) ResolveDID(ctx context.Context) error {
	did, ok := s.IssuerDID()
	if !ok {
		return fmt.Errorf("%w: publish your DID first", exchange.ErrMissingPrerequisite)
	}

	res, err := s.ledger.ResolveDID(ctx, did)
	if err != nil {
		return err
	}

	doc, err := json.MarshalIndent(map[string]interface{}{
		"didDocument": res.DIDDocument,
		"resources":   res.DIDDocumentMetadata.LinkedResourceMetadata,
	}, "", "  ")
	if err != nil {
		return err
	}

	s.printer.Plain("Did document: " + string(doc))

	return nil
}

// Balance prints the account balance.
func (s *Session) Balance(ctx context.Context) error {
	coin, err := s.ledger.Balance(ctx, s.cfg.Wallet.Address)
	if err != nil {
		return err
	}

	s.printer.Plain(cli.GetBalanceTitle)
	s.printer.Plain(fmt.Sprintf("Your current balance: %s %s", coin.Amount, coin.Denom))

	return nil
}

func (s *Session) funded(ctx context.Context) (bool, error) {
	coin, err := s.ledger.Balance(ctx, s.cfg.Wallet.Address)
	if err != nil {
		return false, err
	}

	return !coin.IsZero(), nil
}

// CreateInvitation prints a new out-of-band invitation and waits for the holder to connect.
func (s *Session) CreateInvitation(ctx context.Context) error {
	inv, err := s.runtime.CreateInvitation(ctx)
	if err != nil {
		return err
	}

	s.printer.Plain(cli.ConnectionLink + inv.URL + "\n")

	return s.waitForConnection(ctx, inv.ID)
}

// ReceiveInvitation accepts an invitation url pasted by the operator and waits for the
// handshake to complete.
func (s *Session) ReceiveInvitation(ctx context.Context) error {
	url, err := s.prompter.Input(ctx, cli.InvitationTitle)
	if err != nil {
		return err
	}

	if url == "" {
		return nil
	}

	inv, err := s.runtime.AcceptInvitation(ctx, url)
	if err != nil {
		return err
	}

	return s.waitForConnection(ctx, inv.ID)
}

func (s *Session) waitForConnection(ctx context.Context, correlationID string) error {
	s.printer.Plain(cli.WaitingForConnection)

	rec, err := s.waiter.WaitForConnection(ctx, correlationID, s.cfg.ConnectionTimeout)

	switch {
	case errors.Is(err, race.ErrTimeout):
		s.printer.Error(cli.NoConnectionFromInvitation)

		return nil
	case errors.Is(err, connection.ErrNotCompleted):
		s.printer.Error(fmt.Sprintf(cli.ConnectionNotCompleted, s.cfg.CompletionTimeout))

		return nil
	case err != nil:
		return err
	}

	logutil.LogInfo(logger, commandName, "connect", "connection established",
		logutil.CreateKeyValueString("connectionID", rec.ConnectionID),
		logutil.CreateKeyValueString("theirLabel", rec.TheirLabel))
	s.printer.Success(cli.ConnectionEstablished)

	return nil
}

// OfferCredential runs the issuance flow.
func (s *Session) OfferCredential(ctx context.Context) error {
	res, err := s.flows.IssueCredential(ctx)
	if err != nil {
		return err
	}

	s.report(res)

	return nil
}

// RequestProof runs the proof request flow.
func (s *Session) RequestProof(ctx context.Context) error {
	res, err := s.flows.RequestProof(ctx)
	if err != nil {
		return err
	}

	s.report(res)

	return nil
}

func (s *Session) report(res *exchange.Result) {
	msg := fmt.Sprintf("\n%s %s\n", res.Kind, res.State)

	switch res.State { //nolint:exhaustive
	case exchange.Accepted:
		s.printer.Success(msg)
	case exchange.TimedOut:
		s.printer.Error(msg)
	default:
		s.printer.Notice(msg)
	}
}

// ListProofs prints every received presentation with its verification flag.
func (s *Session) ListProofs(ctx context.Context) error {
	proofs, err := s.flows.ListProofs(ctx)
	if err != nil {
		return err
	}

	for _, p := range proofs {
		s.printer.Notice(fmt.Sprintf("\nverified: %t\n", p.Verified))

		revealed, err := json.MarshalIndent(map[string]interface{}{
			"revealed_attrs": p.Revealed,
			"predicates":     p.Predicates,
		}, "", "  ")
		if err != nil {
			return err
		}

		s.printer.Success(string(revealed) + "\n")
	}

	return nil
}

// SendMessage sends a basic message over the connection. An empty message or "q" cancels.
func (s *Session) SendMessage(ctx context.Context) error {
	conn, ok := s.waiter.Connection()
	if !ok {
		return exchange.ErrMissingConnection
	}

	text, err := s.prompter.Input(ctx, cli.MessageTitle)
	if err != nil {
		return err
	}

	if text == "" || strings.EqualFold(text, messageCancel) {
		return nil
	}

	return s.runtime.SendMessage(ctx, conn.ConnectionID, text)
}
