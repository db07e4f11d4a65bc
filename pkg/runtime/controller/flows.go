/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-faber-go/pkg/runtime"
)

const (
	offerCredentialType     = "https://didcomm.org/issue-credential/2.0/offer-credential"
	credentialPreviewType   = "https://didcomm.org/issue-credential/2.0/credential-preview"
	requestPresentationType = "https://didcomm.org/present-proof/2.0/request-presentation"
	basicMessageType        = "https://didcomm.org/basicmessage/1.0/message"

	credentialOfferFormat = "anoncreds/credential-offer@v1.0"
	proofRequestFormat    = "anoncreds/proof-request@v1.0"
	nonceBits             = 80
)

// ErrConnectionNotReady is returned when an exchange is attempted over a connection that has
// not completed its handshake.
var ErrConnectionNotReady = errors.New("connection not ready")

type sendOfferRequest struct {
	MyDID           string                 `json:"my_did"`
	TheirDID        string                 `json:"their_did"`
	OfferCredential map[string]interface{} `json:"offer_credential"`
}

type sendRequestPresentationRequest struct {
	MyDID               string                 `json:"my_did"`
	TheirDID            string                 `json:"their_did"`
	RequestPresentation map[string]interface{} `json:"request_presentation"`
}

type piidResponse struct {
	PIID string `json:"piid"`
}

type sendMessageRequest struct {
	ConnectionID string                 `json:"connection_ID"`
	MessageBody  map[string]interface{} `json:"message_body"`
}

type registerServiceRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Purpose string `json:"purpose,omitempty"`
}

type unregisterServiceRequest struct {
	Name string `json:"name"`
}

func (c *Client) pairwise(ctx context.Context, connectionID string) (*connectionRecord, error) {
	r, err := c.connection(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if runtime.State(r.State) != runtime.StateCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrConnectionNotReady, connectionID, r.State)
	}

	return r, nil
}

// OfferCredential sends an issue-credential offer and returns the protocol instance id.
func (c *Client) OfferCredential(ctx context.Context, offer *runtime.CredentialOffer) (string, error) {
	r, err := c.pairwise(ctx, offer.ConnectionID)
	if err != nil {
		return "", err
	}

	var resp piidResponse

	err = c.send(ctx, http.MethodPost, "/issuecredential/send-offer", &sendOfferRequest{
		MyDID:           r.MyDID,
		TheirDID:        r.TheirDID,
		OfferCredential: offerMessage(offer),
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("send offer: %w", err)
	}

	c.track(resp.PIID, "")

	return resp.PIID, nil
}

func offerMessage(offer *runtime.CredentialOffer) map[string]interface{} {
	attachID := uuid.New().String()

	attributes := make([]map[string]interface{}, 0, len(offer.Attributes))
	for _, a := range offer.Attributes {
		attributes = append(attributes, map[string]interface{}{"name": a.Name, "value": a.Value})
	}

	return map[string]interface{}{
		"@id":     uuid.New().String(),
		"@type":   offerCredentialType,
		"comment": "Faber College credential offer",
		"credential_preview": map[string]interface{}{
			"@type":      credentialPreviewType,
			"attributes": attributes,
		},
		"formats": []interface{}{
			map[string]interface{}{"attach_id": attachID, "format": credentialOfferFormat},
		},
		"offers~attach": []interface{}{
			map[string]interface{}{
				"@id":       attachID,
				"mime-type": "application/json",
				"data": map[string]interface{}{
					"json": map[string]interface{}{"cred_def_id": offer.CredentialDefinitionID},
				},
			},
		},
	}
}

// RequestProof sends a present-proof request and returns the protocol instance id.
func (c *Client) RequestProof(ctx context.Context, request *runtime.ProofRequest) (string, error) {
	r, err := c.pairwise(ctx, request.ConnectionID)
	if err != nil {
		return "", err
	}

	msg, err := requestMessage(request)
	if err != nil {
		return "", err
	}

	var resp piidResponse

	err = c.send(ctx, http.MethodPost, "/presentproof/send-request-presentation", &sendRequestPresentationRequest{
		MyDID:               r.MyDID,
		TheirDID:            r.TheirDID,
		RequestPresentation: msg,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("send proof request: %w", err)
	}

	c.track(resp.PIID, request.Name)

	return resp.PIID, nil
}

func requestMessage(request *runtime.ProofRequest) (map[string]interface{}, error) {
	nonce, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), nonceBits))
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	attachID := uuid.New().String()

	return map[string]interface{}{
		"@id":          uuid.New().String(),
		"@type":        requestPresentationType,
		"will_confirm": true,
		"formats": []interface{}{
			map[string]interface{}{"attach_id": attachID, "format": proofRequestFormat},
		},
		"request_presentations~attach": []interface{}{
			map[string]interface{}{
				"@id":       attachID,
				"mime-type": "application/json",
				"data": map[string]interface{}{
					"json": map[string]interface{}{
						"name":                 request.Name,
						"version":              request.Version,
						"nonce":                nonce.String(),
						"requested_attributes": request.RequestedAttributes,
						"requested_predicates": request.RequestedPredicates,
					},
				},
			},
		},
	}, nil
}

// SendMessage sends a basic message over the connection.
func (c *Client) SendMessage(ctx context.Context, connectionID, text string) error {
	err := c.send(ctx, http.MethodPost, "/message/send", &sendMessageRequest{
		ConnectionID: connectionID,
		MessageBody: map[string]interface{}{
			"@id":       uuid.New().String(),
			"@type":     basicMessageType,
			"content":   text,
			"sent_time": time.Now().UTC().Format(time.RFC3339),
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

func (c *Client) registerMessageService(ctx context.Context) error {
	err := c.send(ctx, http.MethodPost, "/message/register-service", &registerServiceRequest{
		Name: string(runtime.MessageTopic),
		Type: basicMessageType,
	}, nil)
	if err != nil {
		return fmt.Errorf("register message service: %w", err)
	}

	return nil
}

func (c *Client) unregisterMessageService(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/message/unregister-service", &unregisterServiceRequest{
		Name: string(runtime.MessageTopic),
	}, nil)
}
