/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package command holds the error codes operator commands report failures with.
package command

// Type is command error type.
type Type int32

const (
	// ValidationError is the type of errors raised before a command could start, such as a
	// missing connection or issuer DID.
	ValidationError Type = iota

	// ExecuteError is the type of errors raised while a command ran.
	ExecuteError
)

func (t Type) String() string {
	if t == ValidationError {
		return "validation"
	}

	return "execute"
}

// Code is the error code of command errors.
type Code int32

// UnknownStatus default error code for unknown errors.
const UnknownStatus Code = iota

// Group is a range of codes owned by one command family. New groups follow the [0-9]*000 pattern.
type Group int32

const (
	// Common error group for general command errors.
	Common Group = 1000

	// DID error group for issuer DID and account commands.
	DID Group = 2000

	// Connection error group for invitation and connection commands.
	Connection Group = 3000

	// IssueCredential error group for credential offers.
	IssueCredential Group = 4000

	// PresentProof error group for proof requests and the proof book.
	PresentProof Group = 5000

	// Messaging error group for basic messages.
	Messaging Group = 6000
)

// Error is a command error condition.
type Error interface {
	error
	// Code returns error code for this command error.
	Code() Code
	// Type returns error type for this command error.
	Type() Type
}

// NewValidationError returns new command validation error.
func NewValidationError(code Code, err error) Error {
	return &commandError{err, code, ValidationError}
}

// NewExecuteError returns new command execute error.
func NewExecuteError(code Code, err error) Error {
	return &commandError{err, code, ExecuteError}
}

type commandError struct {
	error
	code    Code
	errType Type
}

func (c *commandError) Code() Code {
	return c.code
}

func (c *commandError) Type() Type {
	return c.errType
}

func (c *commandError) Unwrap() error {
	return c.error
}
