/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cli

// Operator facing messages.
const (
	NoConnectionFromInvitation = "\nNo connectionRecord has been created from invitation\n"
	ConnectionEstablished      = "\nConnection established!"
	MissingConnectionRecord    = "\nNo connectionRecord ID has been set yet\n"
	ConnectionLink             = "\nRun 'Receive connection invitation' in Alice and paste this invitation link:\n\n"
	WaitingForConnection       = "Waiting for Alice to finish connection..."
	ConnectionNotCompleted     = "\nTimeout of %s reached.. Returning to home screen.\n"
	Exit                       = "Shutting down agent...\nExiting..."
	AgentCreated               = "\nAgent %s created!\n"
	DIDRegistrationFailed      = "Failed to register DID, try again"
)

// Prompt titles.
const (
	OptionsTitle    = "\nOptions:"
	InvitationTitle = "\n\nPaste the invitation url here:"
	MessageTitle    = "\n\nWrite your message here:\n(Press enter to send or press q to exit)\n"
	ConfirmTitle    = "\n\nAre you sure?"
	GetBalanceTitle = "\nGet cheqd token Balance:"
	GetTokens       = "\nGet some test tokens from https://testnet-faucet.cheqd.io for your cheqd address to continue"
)
