/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package aries-faber runs the interactive faber agent: it publishes an issuer DID, invites holders
// and issues and verifies their credentials over an aries agent.
package main

import (
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/spf13/cobra"

	"github.com/hyperledger/aries-faber-go/cmd/aries-faber/startcmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use: "aries-faber",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	logger := log.New("aries-faber/main")

	startCmd, err := startcmd.Cmd(&startcmd.LoopRunner{})
	if err != nil {
		logger.Fatalf("%s", err)
	}

	rootCmd.AddCommand(startCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Fatalf("Failed to run aries-faber: %s", err)
	}
}
