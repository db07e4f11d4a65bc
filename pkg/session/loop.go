/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hyperledger/aries-faber-go/pkg/cli"
	"github.com/hyperledger/aries-faber-go/pkg/command"
	"github.com/hyperledger/aries-faber-go/pkg/exchange"
	"github.com/hyperledger/aries-faber-go/pkg/internal/logutil"
)

// ErrFatalSetup is returned when a session cannot be created. It is the only error that ends
// the process.
var ErrFatalSetup = errors.New("agent setup failed")

// Option is a menu entry.
type Option string

// Menu entries.
const (
	PublishDID        Option = "Publish your DID"
	ResolveDID        Option = "Resolve your DID"
	GetBalance        Option = "Get your account balance"
	CreateInvitation  Option = "Create connection invitation"
	ReceiveInvitation Option = "Receive connection invitation"
	OfferCredential   Option = "Offer credential"
	RequestProof      Option = "Request proof"
	ListProofs        Option = "List proofs"
	SendMessage       Option = "Send message"
	Exit              Option = "Exit"
	Restart           Option = "Restart"
)

// Options returns the menu valid in the current state: publishing is offered until a DID is
// known, connecting until a connection exists, and exchange flows only once connected.
func (s *Session) Options() []Option {
	if _, ok := s.Connection(); ok {
		return []Option{
			PublishDID, ResolveDID, GetBalance, CreateInvitation, ReceiveInvitation,
			OfferCredential, RequestProof, ListProofs, SendMessage, Exit, Restart,
		}
	}

	if _, ok := s.IssuerDID(); ok {
		return []Option{ResolveDID, CreateInvitation, ReceiveInvitation, GetBalance, Exit, Restart}
	}

	return []Option{PublishDID, GetBalance, Exit, Restart}
}

// maxPromptFailures bounds consecutive prompt failures before Run gives up.
const maxPromptFailures = 3

// Run presents the menu until the operator confirms Exit or Restart, which is returned.
// Action errors and transient prompt failures are printed and the menu is shown again.
func (s *Session) Run(ctx context.Context) (Option, error) {
	failures := 0

	for {
		if funded, err := s.funded(ctx); err != nil {
			logger.Warnf("balance check failed: %s", err)
		} else if !funded {
			s.printer.Notice(cli.GetTokens)
		}

		options := s.Options()
		labels := make([]string, len(options))

		for i, o := range options {
			labels[i] = string(o)
		}

		choice, err := s.prompter.Select(ctx, cli.OptionsTitle, labels)
		if err != nil {
			if s.retryPrompt(ctx, err, &failures) {
				continue
			}

			return s.interrupted(ctx, err)
		}

		failures = 0

		opt := Option(choice)

		if opt == Exit || opt == Restart {
			yes, err := s.prompter.Confirm(ctx, cli.ConfirmTitle)
			if err != nil {
				if s.retryPrompt(ctx, err, &failures) {
					continue
				}

				return s.interrupted(ctx, err)
			}

			if yes {
				return opt, nil
			}

			continue
		}

		if err := s.Dispatch(ctx, opt); err != nil {
			if ctx.Err() != nil || errors.Is(err, cli.ErrAborted) {
				return s.interrupted(ctx, err)
			}

			if errors.Is(err, exchange.ErrMissingConnection) {
				s.printer.Error(cli.MissingConnectionRecord)

				continue
			}

			s.printer.Error(err.Error())
		}
	}
}

// retryPrompt reports whether a failed menu prompt should be shown again. Aborts, cancellation
// and a closed terminal end the session, as does a run of maxPromptFailures failures.
func (s *Session) retryPrompt(ctx context.Context, err error, failures *int) bool {
	if ctx.Err() != nil || errors.Is(err, cli.ErrAborted) || errors.Is(err, io.EOF) {
		return false
	}

	*failures++
	if *failures >= maxPromptFailures {
		return false
	}

	logger.Warnf("prompt failed (%d/%d): %s", *failures, maxPromptFailures, err)
	s.printer.Error(err.Error())

	return true
}

func (s *Session) interrupted(ctx context.Context, err error) (Option, error) {
	if errors.Is(err, cli.ErrAborted) || errors.Is(err, io.EOF) {
		return Exit, nil
	}

	if ctx.Err() != nil {
		return Exit, ctx.Err()
	}

	return Exit, err
}

const commandName = "session"

// Error codes reported by menu actions.
const (
	InvalidOptionErrorCode = command.Code(iota + command.Common)
)

const (
	PublishDIDErrorCode = command.Code(iota + command.DID)
	ResolveDIDErrorCode
	BalanceErrorCode
)

const (
	CreateInvitationErrorCode = command.Code(iota + command.Connection)
	ReceiveInvitationErrorCode
)

const (
	OfferCredentialErrorCode = command.Code(iota + command.IssueCredential)
)

const (
	RequestProofErrorCode = command.Code(iota + command.PresentProof)
	ListProofsErrorCode
)

const (
	SendMessageErrorCode = command.Code(iota + command.Messaging)
)

type action struct {
	code command.Code
	run  func(ctx context.Context) error
}

func (s *Session) actions() map[Option]action {
	return map[Option]action{
		PublishDID:        {PublishDIDErrorCode, s.PublishDID},
		ResolveDID:        {ResolveDIDErrorCode, s.ResolveDID},
		GetBalance:        {BalanceErrorCode, s.Balance},
		CreateInvitation:  {CreateInvitationErrorCode, s.CreateInvitation},
		ReceiveInvitation: {ReceiveInvitationErrorCode, s.ReceiveInvitation},
		OfferCredential:   {OfferCredentialErrorCode, s.OfferCredential},
		RequestProof:      {RequestProofErrorCode, s.RequestProof},
		ListProofs:        {ListProofsErrorCode, s.ListProofs},
		SendMessage:       {SendMessageErrorCode, s.SendMessage},
	}
}

// Dispatch runs one menu action. Failures are returned as command errors: missing prerequisites
// are validation errors, anything else an execute error.
func (s *Session) Dispatch(ctx context.Context, opt Option) error {
	a, ok := s.actions()[opt]
	if !ok {
		return command.NewValidationError(InvalidOptionErrorCode, fmt.Errorf("unknown option %q", opt))
	}

	err := a.run(ctx)
	if err == nil {
		logutil.LogDebug(logger, commandName, string(opt), "success")

		return nil
	}

	var cmdErr command.Error

	switch {
	case errors.Is(err, exchange.ErrMissingConnection), errors.Is(err, exchange.ErrMissingPrerequisite):
		cmdErr = command.NewValidationError(a.code, err)
	default:
		cmdErr = command.NewExecuteError(a.code, err)
	}

	logutil.LogError(logger, commandName, string(opt), cmdErr)

	return cmdErr
}

// Factory creates a fresh session.
type Factory func(ctx context.Context) (*Session, error)

// Loop runs sessions until the operator exits.
type Loop struct {
	factory Factory
	printer Printer
}

// NewLoop returns a loop creating sessions with factory.
func NewLoop(factory Factory, printer Printer) *Loop {
	return &Loop{factory: factory, printer: printer}
}

// Run creates a session and runs it. Restart closes the session and starts over with a new one;
// Exit closes it and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	for {
		s, err := l.factory(ctx)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrFatalSetup, err)
		}

		next, err := s.Run(ctx)

		if next == Exit {
			l.printer.Plain(cli.Exit)
		}

		if closeErr := s.Close(); closeErr != nil {
			logger.Warnf("close session: %s", closeErr)
		}

		if err != nil {
			return err
		}

		if next == Exit {
			return nil
		}

		logutil.LogInfo(logger, commandName, string(Restart), "restarting agent")
	}
}
