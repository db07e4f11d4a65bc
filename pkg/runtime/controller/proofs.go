/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/mitchellh/mapstructure"

	"github.com/hyperledger/aries-faber-go/pkg/runtime"
)

const (
	proofTag = "proof"
	piidTag  = "piid"
)

type presentation struct {
	Attachments []struct {
		Data struct {
			JSON   map[string]interface{} `mapstructure:"json"`
			Base64 string                 `mapstructure:"base64"`
		} `mapstructure:"data"`
	} `mapstructure:"presentations~attach"`
}

type requestedProof struct {
	RequestedProof struct {
		RevealedAttrs map[string]struct {
			Raw string `json:"raw"`
		} `json:"revealed_attrs"`
		Predicates map[string]interface{} `json:"predicates"`
	} `json:"requested_proof"`
}

// recordProof keeps the proof book current with present-proof transitions: a received
// presentation is stored unverified and marked verified once the protocol is done.
func (c *Client) recordProof(e *runtime.Event, state *stateMsg) error {
	if e.PIID == "" {
		return nil
	}

	switch e.StateID {
	case runtime.ProofPresentationRecv, runtime.ProtocolDone, runtime.ProtocolAbandoned:
	default:
		return nil
	}

	proof, err := c.proof(e.PIID)
	if err != nil {
		if !errors.Is(err, storage.ErrDataNotFound) {
			return err
		}

		proof = &runtime.Proof{ID: e.PIID, PIID: e.PIID, ConnectionID: e.ConnectionID}
	}

	if state != nil {
		if revealed, predicates, ok := revealedAttributes(state.Message); ok {
			proof.Revealed = revealed
			proof.Predicates = predicates
		}
	}

	proof.Verified = e.StateID == runtime.ProtocolDone

	raw, err := json.Marshal(proof)
	if err != nil {
		return fmt.Errorf("marshal proof: %w", err)
	}

	return c.proofs.Put(e.PIID, raw, storage.Tag{Name: proofTag}, storage.Tag{Name: piidTag, Value: e.PIID})
}

func (c *Client) proof(piid string) (*runtime.Proof, error) {
	raw, err := c.proofs.Get(piid)
	if err != nil {
		return nil, err
	}

	var proof runtime.Proof
	if err := json.Unmarshal(raw, &proof); err != nil {
		return nil, fmt.Errorf("unmarshal proof %s: %w", piid, err)
	}

	return &proof, nil
}

// ListProofs returns the presentations received so far, ordered by protocol instance id.
func (c *Client) ListProofs(_ context.Context) ([]*runtime.Proof, error) {
	iter, err := c.proofs.Query(proofTag)
	if err != nil {
		return nil, fmt.Errorf("query proofs: %w", err)
	}

	defer func() {
		if errClose := iter.Close(); errClose != nil {
			logger.Warnf("close proof iterator: %s", errClose)
		}
	}()

	var proofs []*runtime.Proof

	for {
		more, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate proofs: %w", err)
		}

		if !more {
			break
		}

		raw, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("read proof: %w", err)
		}

		var proof runtime.Proof
		if err := json.Unmarshal(raw, &proof); err != nil {
			return nil, fmt.Errorf("unmarshal proof: %w", err)
		}

		proofs = append(proofs, &proof)
	}

	sort.Slice(proofs, func(i, j int) bool { return proofs[i].PIID < proofs[j].PIID })

	return proofs, nil
}

func revealedAttributes(message map[string]interface{}) (map[string]string, []string, bool) {
	var p presentation
	if err := mapstructure.Decode(message, &p); err != nil || len(p.Attachments) == 0 {
		return nil, nil, false
	}

	data := p.Attachments[0].Data

	var (
		raw []byte
		err error
	)

	switch {
	case data.JSON != nil:
		raw, err = json.Marshal(data.JSON)
	case data.Base64 != "":
		raw, err = base64.StdEncoding.DecodeString(data.Base64)
	default:
		return nil, nil, false
	}

	if err != nil {
		return nil, nil, false
	}

	var rp requestedProof
	if err := json.Unmarshal(raw, &rp); err != nil {
		return nil, nil, false
	}

	revealed := make(map[string]string, len(rp.RequestedProof.RevealedAttrs))
	for name, attr := range rp.RequestedProof.RevealedAttrs {
		revealed[name] = attr.Raw
	}

	predicates := make([]string, 0, len(rp.RequestedProof.Predicates))
	for name := range rp.RequestedProof.Predicates {
		predicates = append(predicates, name)
	}

	sort.Strings(predicates)

	return revealed, predicates, true
}
