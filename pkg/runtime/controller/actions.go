/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/hyperledger/aries-faber-go/pkg/runtime"
)

// Action topics the agent publishes when a protocol waits for the controller to continue.
const (
	issuanceActionTopic = "issue-credential_actions"
	proofActionTopic    = "present-proof_actions"

	issueCredentialType = "https://didcomm.org/issue-credential/2.0/issue-credential"

	requestCredentialSuffix = "/request-credential"
	presentationSuffix      = "/presentation"

	actionQueueSize = 16
)

type action struct {
	topic string
	piid  string
	kind  string
}

type acceptRequestRequest struct {
	IssueCredential map[string]interface{} `json:"issue_credential"`
}

type acceptPresentationRequest struct {
	Names []string `json:"names,omitempty"`
}

// track records a protocol instance started by this client so its actions are continued.
// Proof instances keep the request name the verified presentation is stored under.
func (c *Client) track(piid, name string) {
	if piid == "" {
		return
	}

	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()

	c.pending[piid] = name
}

func (c *Client) forget(piid string) {
	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()

	delete(c.pending, piid)
}

func (c *Client) tracked(piid string) (string, bool) {
	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()

	name, ok := c.pending[piid]

	return name, ok
}

func isActionTopic(topic string) bool {
	return topic == issuanceActionTopic || topic == proofActionTopic
}

// decodeAction extracts the protocol instance and message type of an action notification.
func decodeAction(msg *incoming) (*action, error) {
	var state stateMsg
	if err := json.Unmarshal(msg.Message, &state); err != nil {
		return nil, fmt.Errorf("%w: %s", errMalformed, err)
	}

	var props stateProperties
	if err := mapstructure.Decode(state.Properties, &props); err != nil {
		return nil, fmt.Errorf("%w: properties: %s", errMalformed, err)
	}

	if props.PIID == "" {
		return nil, fmt.Errorf("%w: action without piid", errMalformed)
	}

	kind, _ := state.Message["@type"].(string) //nolint:errcheck

	return &action{topic: msg.Topic, piid: props.PIID, kind: kind}, nil
}

// enqueueAction hands an action for one of our protocol instances to the continuation worker.
// Actions for instances this client did not start are left to their owner.
func (c *Client) enqueueAction(msg *incoming) {
	a, err := decodeAction(msg)
	if err != nil {
		logger.Warnf("ignoring %s notification %s: %s", msg.Topic, msg.ID, err)

		return
	}

	if _, ok := c.tracked(a.piid); !ok {
		logger.Debugf("ignoring %s action for foreign piid %s", a.topic, a.piid)

		return
	}

	select {
	case c.actions <- a:
	default:
		logger.Warnf("dropping %s action for piid %s, continuation queue is full", a.topic, a.piid)
	}
}

func (c *Client) continueActions(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-c.actions:
			if err := c.accept(ctx, a); err != nil {
				logger.Errorf("continue %s piid %s: %s", a.topic, a.piid, err)
			}
		}
	}
}

func (c *Client) accept(ctx context.Context, a *action) error {
	name, _ := c.tracked(a.piid)

	switch {
	case a.topic == issuanceActionTopic && strings.HasSuffix(a.kind, requestCredentialSuffix):
		return c.send(ctx, http.MethodPost, "/issuecredential/"+a.piid+"/accept-request", &acceptRequestRequest{
			IssueCredential: map[string]interface{}{
				"@id":     uuid.New().String(),
				"@type":   issueCredentialType,
				"comment": "Faber College credential",
			},
		}, nil)
	case a.topic == proofActionTopic && strings.HasSuffix(a.kind, presentationSuffix):
		req := &acceptPresentationRequest{}
		if name != "" {
			req.Names = []string{name}
		}

		return c.send(ctx, http.MethodPost, "/presentproof/"+a.piid+"/accept-presentation", req, nil)
	}

	logger.Debugf("no continuation for %s action %q on piid %s", a.topic, a.kind, a.piid)

	return nil
}

// settle drops the instance once its protocol reached a terminal state.
func (c *Client) settle(e *runtime.Event) {
	if e.PIID == "" {
		return
	}

	if e.StateID == runtime.ProtocolDone || e.StateID == runtime.ProtocolAbandoned {
		c.forget(e.PIID)
	}
}
