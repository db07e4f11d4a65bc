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
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hyperledger/aries-faber-go/pkg/runtime"
)

const (
	invitationQueryParam = "oob"
	didExchangeProtocol  = "https://didcomm.org/didexchange/1.0"
)

// ErrInvalidInvitation is returned for invitation URLs that do not carry an out-of-band invitation.
var ErrInvalidInvitation = errors.New("invalid invitation")

// connectionRecord mirrors the agent's connection record.
type connectionRecord struct {
	ConnectionID   string
	State          string
	ThreadID       string
	ParentThreadID string
	TheirLabel     string
	TheirDID       string
	MyDID          string
	InvitationID   string
}

func (r *connectionRecord) toRecord() *runtime.Record {
	correlation := r.InvitationID
	if correlation == "" {
		correlation = r.ParentThreadID
	}

	return &runtime.Record{
		ConnectionID:  r.ConnectionID,
		CorrelationID: correlation,
		State:         runtime.State(r.State),
		TheirLabel:    r.TheirLabel,
		MyDID:         r.MyDID,
		TheirDID:      r.TheirDID,
		UpdatedAt:     time.Now(),
	}
}

func (r *connectionRecord) correlates(id string) bool {
	return id != "" && (r.InvitationID == id || r.ParentThreadID == id)
}

type createInvitationRequest struct {
	Label     string   `json:"label"`
	Protocols []string `json:"protocols,omitempty"`
}

type invitationResponse struct {
	Invitation map[string]interface{} `json:"invitation"`
}

type acceptInvitationRequest struct {
	Invitation map[string]interface{} `json:"invitation"`
	MyLabel    string                 `json:"my_label"`
}

type acceptInvitationResponse struct {
	ConnectionID string `json:"connection_id"`
}

type queryConnectionsResponse struct {
	Results []*connectionRecord `json:"results"`
}

type queryConnectionResponse struct {
	Result *connectionRecord `json:"result"`
}

// CreateInvitation asks the agent for an out-of-band invitation and encodes it into a URL.
func (c *Client) CreateInvitation(ctx context.Context) (*runtime.Invitation, error) {
	var resp invitationResponse

	err := c.send(ctx, http.MethodPost, "/outofband/create-invitation", &createInvitationRequest{
		Label:     c.cfg.Label,
		Protocols: []string{didExchangeProtocol},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	id, _ := resp.Invitation["@id"].(string) //nolint:errcheck
	if id == "" {
		return nil, fmt.Errorf("create invitation: %w: missing @id", ErrInvalidInvitation)
	}

	link, err := encodeInvitation(c.cfg.InvitationDomain, resp.Invitation)
	if err != nil {
		return nil, err
	}

	return &runtime.Invitation{ID: id, URL: link}, nil
}

// AcceptInvitation decodes an invitation URL and has the agent start a DID exchange from it.
func (c *Client) AcceptInvitation(ctx context.Context, link string) (*runtime.Invitation, error) {
	invitation, err := decodeInvitation(link)
	if err != nil {
		return nil, err
	}

	var resp acceptInvitationResponse

	err = c.send(ctx, http.MethodPost, "/outofband/accept-invitation", &acceptInvitationRequest{
		Invitation: invitation,
		MyLabel:    c.cfg.Label,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}

	id, _ := invitation["@id"].(string) //nolint:errcheck

	return &runtime.Invitation{ID: id, URL: link, ConnectionID: resp.ConnectionID}, nil
}

func encodeInvitation(domain string, invitation map[string]interface{}) (string, error) {
	raw, err := json.Marshal(invitation)
	if err != nil {
		return "", fmt.Errorf("marshal invitation: %w", err)
	}

	return domain + "?" + invitationQueryParam + "=" + base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeInvitation(link string) (map[string]interface{}, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInvitation, err)
	}

	encoded := u.Query().Get(invitationQueryParam)
	if encoded == "" {
		return nil, fmt.Errorf("%w: missing %s parameter", ErrInvalidInvitation, invitationQueryParam)
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInvitation, err)
	}

	invitation := make(map[string]interface{})
	if err := json.Unmarshal(raw, &invitation); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInvitation, err)
	}

	return invitation, nil
}

// FindByCorrelationID looks up the record created from the invitation with the given id.
func (c *Client) FindByCorrelationID(ctx context.Context, correlationID string) (*runtime.Record, error) {
	var resp queryConnectionsResponse

	if err := c.send(ctx, http.MethodGet, "/connections", nil, &resp); err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}

	for _, r := range resp.Results {
		if r.correlates(correlationID) {
			return r.toRecord(), nil
		}
	}

	return nil, runtime.ErrRecordNotFound
}

func (c *Client) connection(ctx context.Context, connectionID string) (*connectionRecord, error) {
	var resp queryConnectionResponse

	err := c.send(ctx, http.MethodGet, "/connections/"+url.PathEscape(connectionID), nil, &resp)
	if err != nil {
		var httpErr *httpError
		if errors.As(err, &httpErr) && httpErr.status == http.StatusNotFound {
			return nil, runtime.ErrRecordNotFound
		}

		return nil, fmt.Errorf("get connection %s: %w", connectionID, err)
	}

	if resp.Result == nil {
		return nil, runtime.ErrRecordNotFound
	}

	return resp.Result, nil
}

// WaitUntilState polls the connection until it reaches state, is abandoned or ctx is done.
func (c *Client) WaitUntilState(ctx context.Context, connectionID string, state runtime.State) (*runtime.Record, error) {
	var record *connectionRecord

	err := backoff.Retry(func() error {
		r, err := c.connection(ctx, connectionID)
		if err != nil {
			return err
		}

		record = r

		switch runtime.State(r.State) {
		case state:
			return nil
		case runtime.StateAbandoned:
			return backoff.Permanent(fmt.Errorf("connection %s abandoned", connectionID))
		}

		return fmt.Errorf("connection %s is %s", connectionID, r.State)
	}, backoff.WithContext(backoff.NewConstantBackOff(c.cfg.PollInterval), ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, err
	}

	return record.toRecord(), nil
}
