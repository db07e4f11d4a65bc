/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package faber is the issuer side of the Alice/Faber credential exchange demo, driven from an
// interactive console on top of an aries agent.
//
// Packages
//
// pkg/runtime: The agent runtime surface a session talks to, with pkg/runtime/controller binding it to
// an aries REST controller and websocket notifier.
//
// pkg/race: Waits for the first of a notification or a direct state query, with a deadline.
//
// pkg/connection: Waits for an invited holder to establish and complete a connection.
//
// pkg/exchange: Runs credential offer and proof request flows, resolving schema and credential
// definition on the ledger first.
//
// pkg/prompt: Holds the operator's accept prompt open until the holder answers or the outcome times out.
//
// pkg/session: The operator menu and the session loop that restarts the agent on demand.
//
// Basic workflow
//
//      1) Start an aries agent with its REST controller and websocket notifier enabled.
//      2) Run `aries-faber start --agent-url <controller url>`.
//      3) Publish a DID, create an invitation and paste it into the holder.
//      4) Offer a credential, request a proof and list the proofs received.
package faber
