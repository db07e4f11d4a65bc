/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import "errors"

var (
	// ErrMissingConnection is returned when a flow is started before a connection is established.
	ErrMissingConnection = errors.New("no connection record has been set yet")
	// ErrMissingPrerequisite is returned when the issuer DID or a cached credential
	// definition a flow depends on is not available.
	ErrMissingPrerequisite = errors.New("missing prerequisite")
	// ErrFlowBusy is returned when a flow is started while another one is in progress.
	ErrFlowBusy = errors.New("another exchange flow is in progress")
	// ErrRegistrationFailed is returned when schema or credential definition registration fails.
	ErrRegistrationFailed = errors.New("registration failed")
)
