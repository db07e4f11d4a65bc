/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"encoding/json"
	"math/big"
)

// StateFinished is the only registration state a flow may proceed from.
const StateFinished = "finished"

// StateFailed marks a registration rejected by the ledger.
const StateFailed = "failed"

// DIDState is the registrar's answer to a DID create request.
type DIDState struct {
	State  string `json:"state"`
	DID    string `json:"did,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type createDIDRequest struct {
	Options map[string]interface{} `json:"options"`
	Secret  map[string]interface{} `json:"secret"`
}

type createDIDResponse struct {
	JobID    string   `json:"jobId,omitempty"`
	DIDState DIDState `json:"didState"`
}

// Resolution is a resolved DID document with its metadata.
type Resolution struct {
	DIDDocument         json.RawMessage `json:"didDocument"`
	DIDDocumentMetadata struct {
		LinkedResourceMetadata []json.RawMessage `json:"linkedResourceMetadata,omitempty"`
	} `json:"didDocumentMetadata"`
}

// Found reports whether the resolver returned a document.
func (r *Resolution) Found() bool {
	return r != nil && len(r.DIDDocument) > 0 && string(r.DIDDocument) != "null"
}

// Coin is an amount of a single denomination.
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// IsZero reports whether the amount is empty or zero.
func (c *Coin) IsZero() bool {
	if c == nil || c.Amount == "" {
		return true
	}

	n, ok := new(big.Int).SetString(c.Amount, 10)

	return !ok || n.Sign() == 0
}

type balancesResponse struct {
	Balances []Coin `json:"balances"`
}

// Schema is an anoncreds schema template.
type Schema struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	AttrNames []string `json:"attrNames"`
	IssuerID  string   `json:"issuerId"`
}

// SchemaState is the registration result for a schema.
type SchemaState struct {
	State    string  `json:"state"`
	SchemaID string  `json:"schemaId,omitempty"`
	Schema   *Schema `json:"schema,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

type registerSchemaRequest struct {
	Schema  *Schema                `json:"schema"`
	Options map[string]interface{} `json:"options"`
}

type registerSchemaResponse struct {
	SchemaState SchemaState `json:"schemaState"`
}

// CredentialDefinition is an anoncreds credential definition template.
type CredentialDefinition struct {
	SchemaID string `json:"schemaId"`
	IssuerID string `json:"issuerId"`
	Tag      string `json:"tag"`
}

// CredentialDefinitionState is the registration result for a credential definition.
type CredentialDefinitionState struct {
	State                  string `json:"state"`
	CredentialDefinitionID string `json:"credentialDefinitionId,omitempty"`
	Reason                 string `json:"reason,omitempty"`
}

type registerCredDefRequest struct {
	CredentialDefinition *CredentialDefinition `json:"credentialDefinition"`
	Options              map[string]interface{} `json:"options"`
}

type registerCredDefResponse struct {
	CredentialDefinitionState CredentialDefinitionState `json:"credentialDefinitionState"`
}
