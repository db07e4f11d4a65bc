/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package startcmd holds the cobra command that starts the faber agent.
package startcmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/spf13/cobra"

	"github.com/hyperledger/aries-faber-go/pkg/cli"
	"github.com/hyperledger/aries-faber-go/pkg/ledger"
	"github.com/hyperledger/aries-faber-go/pkg/runtime/controller"
	"github.com/hyperledger/aries-faber-go/pkg/session"
	"github.com/hyperledger/aries-faber-go/pkg/wallet"
)

var logger = log.New("aries-faber/startcmd")

// Runner drives the session loop once the agent is configured.
type Runner interface {
	Run(ctx context.Context, loop *session.Loop) error
}

// LoopRunner runs the loop until the operator exits.
type LoopRunner struct{}

// Run runs loop.
func (r *LoopRunner) Run(ctx context.Context, loop *session.Loop) error {
	return loop.Run(ctx)
}

// Cmd returns the Cobra start command.
func Cmd(runner Runner) (*cobra.Command, error) {
	startCmd := createStartCMD(runner)

	createFlags(startCmd)

	return startCmd, nil
}

func createStartCMD(runner Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the faber agent",
		Long:  `Start the interactive faber agent on top of an aries agent controller`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getParameters(cmd)
			if err != nil {
				return err
			}

			if err := setLogLevel(parameters.LogLevel); err != nil {
				return err
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}

			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return startAgent(ctx, runner, parameters, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func getUserSetVar(cmd *cobra.Command, flagName, envKey string) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	return os.Getenv(envKey), nil
}

func setLogLevel(logLevel string) error {
	if logLevel != "" {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("failed to parse log level '%s' : %w", logLevel, err)
		}

		log.SetLevel("", level)

		logger.Infof("logger level set to %s", logLevel)
	}

	return nil
}

func startAgent(ctx context.Context, runner Runner, parameters *agentParameters, in io.Reader, out io.Writer) error {
	w, created, err := wallet.LoadOrCreate(parameters.WalletFile)
	if err != nil {
		return fmt.Errorf("%w: %s", session.ErrFatalSetup, err)
	}

	output := cli.NewOutput(out)

	if created {
		output.Notice(fmt.Sprintf("\nCreated ledger account %s, stored in %s\n", w.Address, parameters.WalletFile))
	}

	loop := session.NewLoop(newFactory(parameters, w, cli.NewPrompter(in, out), output), output)

	return runner.Run(ctx, loop)
}

// newFactory returns a session factory that connects a fresh runtime for every agent instance.
func newFactory(parameters *agentParameters, w *wallet.Wallet, prompter *cli.Prompter,
	output *cli.Output) session.Factory {
	ledgerClient := ledger.New(parameters.RegistrarURL, parameters.ResolverURL, parameters.LedgerAPIURL,
		ledger.WithNetwork(parameters.Network))

	return func(ctx context.Context) (*session.Session, error) {
		rt, err := controller.Open(ctx, &controller.Config{
			AgentURL:         parameters.AgentURL,
			WebSocketURL:     parameters.AgentWSURL,
			Label:            parameters.Label,
			InvitationDomain: parameters.InvitationDomain,
			StartupRetries:   parameters.AgentTimeout,
		})
		if err != nil {
			return nil, err
		}

		s, err := session.New(&session.Config{
			Label:             parameters.Label,
			Wallet:            w,
			ConnectionTimeout: parameters.ConnectionTimeout,
			CompletionTimeout: parameters.CompletionTimeout,
			OutcomeTimeout:    parameters.OutcomeTimeout,
		}, rt, ledgerClient, prompter, output)
		if err != nil {
			if closeErr := rt.Close(); closeErr != nil {
				logger.Warnf("close runtime: %s", closeErr)
			}

			return nil, err
		}

		output.Banner(parameters.Label)
		output.Success(fmt.Sprintf(cli.AgentCreated, parameters.Label))

		return s, nil
	}
}
