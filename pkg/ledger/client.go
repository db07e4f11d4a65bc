/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ledger is a request/response client for the cheqd ledger services a faber agent
// depends on: the universal registrar (DIDs, anoncreds schemas and credential definitions),
// the universal resolver and the cosmos bank API.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/pkg/errors"
)

var logger = log.New("aries-faber/ledger")

const (
	// DenomNCheq is the smallest denomination of the cheqd token.
	DenomNCheq = "ncheq"

	defaultCacheSize = 64
	defaultCacheTTL  = 30 * time.Second
	didMethod        = "cheqd"
	verificationKey  = "key-1"
	verificationType = "JsonWebKey2020"
	maxErrorBody     = 512
)

// ErrNotFound is returned by the resolver for an unknown DID.
var ErrNotFound = errors.New("not found")

// RegistrationError reports a registration that did not reach the finished state.
type RegistrationError struct {
	Object string
	State  string
	Reason string
}

func (e *RegistrationError) Error() string {
	reason := "Not Finished"
	if e.State == StateFailed && e.Reason != "" {
		reason = e.Reason
	}

	return fmt.Sprintf("error registering %s: %s", e.Object, reason)
}

// Client talks to the ledger services.
type Client struct {
	httpClient   *http.Client
	registrarURL string
	resolverURL  string
	apiURL       string
	network      string
	cacheTTL     time.Duration
	cache        gcache.Cache
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithNetwork selects the cheqd network, testnet by default.
func WithNetwork(network string) Option {
	return func(client *Client) {
		client.network = network
	}
}

// WithCacheTTL sets how long resolutions and balances are served from cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(client *Client) {
		client.cacheTTL = ttl
	}
}

// New returns a ledger client.
func New(registrarURL, resolverURL, apiURL string, opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: time.Minute},
		registrarURL: strings.TrimSuffix(registrarURL, "/"),
		resolverURL:  strings.TrimSuffix(resolverURL, "/"),
		apiURL:       strings.TrimSuffix(apiURL, "/"),
		network:      "testnet",
		cacheTTL:     defaultCacheTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.cache = gcache.New(defaultCacheSize).LRU().Expiration(c.cacheTTL).Build()

	return c
}

// CreateDID asks the registrar to create and publish a cheqd DID.
func (c *Client) CreateDID(ctx context.Context) (*DIDState, error) {
	req := &createDIDRequest{
		Options: map[string]interface{}{"network": c.network},
		Secret: map[string]interface{}{
			"verificationMethod": map[string]string{"id": verificationKey, "type": verificationType},
		},
	}

	var resp createDIDResponse

	endpoint := fmt.Sprintf("%s/1.0/create?method=%s", c.registrarURL, didMethod)
	if err := c.send(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, errors.Wrap(err, "create did")
	}

	logger.Debugf("create did job %s: state=%s did=%s", resp.JobID, resp.DIDState.State, resp.DIDState.DID)

	return &resp.DIDState, nil
}

// ResolveDID resolves did through the universal resolver.
func (c *Client) ResolveDID(ctx context.Context, did string) (*Resolution, error) {
	key := "did:" + did

	if v, err := c.cache.Get(key); err == nil {
		if res, ok := v.(*Resolution); ok {
			return res, nil
		}
	}

	var res Resolution

	endpoint := fmt.Sprintf("%s/1.0/identifiers/%s", c.resolverURL, url.PathEscape(did))
	if err := c.send(ctx, http.MethodGet, endpoint, nil, &res); err != nil {
		return nil, errors.Wrapf(err, "resolve %s", did)
	}

	if res.Found() {
		if err := c.cache.Set(key, &res); err != nil {
			logger.Warnf("cache resolution of %s: %s", did, err)
		}
	}

	return &res, nil
}

// Balance returns the ncheq balance held by address.
func (c *Client) Balance(ctx context.Context, address string) (*Coin, error) {
	key := "balance:" + address

	if v, err := c.cache.Get(key); err == nil {
		if coin, ok := v.(*Coin); ok {
			return coin, nil
		}
	}

	var resp balancesResponse

	endpoint := fmt.Sprintf("%s/cosmos/bank/v1beta1/balances/%s", c.apiURL, url.PathEscape(address))
	if err := c.send(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "balance of %s", address)
	}

	coin := &Coin{Denom: DenomNCheq, Amount: "0"}

	for i := range resp.Balances {
		if resp.Balances[i].Denom == DenomNCheq {
			coin = &resp.Balances[i]

			break
		}
	}

	if !coin.IsZero() {
		if err := c.cache.Set(key, coin); err != nil {
			logger.Warnf("cache balance of %s: %s", address, err)
		}
	}

	return coin, nil
}

// RegisterSchema registers an anoncreds schema on the ledger.
func (c *Client) RegisterSchema(ctx context.Context, schema *Schema) (*SchemaState, error) {
	var resp registerSchemaResponse

	req := &registerSchemaRequest{Schema: schema, Options: map[string]interface{}{"network": c.network}}

	if err := c.send(ctx, http.MethodPost, c.registrarURL+"/1.0/anoncreds/schemas", req, &resp); err != nil {
		return nil, errors.Wrap(err, "register schema")
	}

	if resp.SchemaState.State != StateFinished {
		return nil, &RegistrationError{Object: "schema", State: resp.SchemaState.State, Reason: resp.SchemaState.Reason}
	}

	return &resp.SchemaState, nil
}

// RegisterCredentialDefinition registers an anoncreds credential definition on the ledger.
func (c *Client) RegisterCredentialDefinition(ctx context.Context,
	def *CredentialDefinition) (*CredentialDefinitionState, error) {
	var resp registerCredDefResponse

	req := &registerCredDefRequest{CredentialDefinition: def, Options: map[string]interface{}{"network": c.network}}

	endpoint := c.registrarURL + "/1.0/anoncreds/credential-definitions"
	if err := c.send(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, errors.Wrap(err, "register credential definition")
	}

	state := resp.CredentialDefinitionState
	if state.State != StateFinished {
		return nil, &RegistrationError{Object: "credential definition", State: state.State, Reason: state.Reason}
	}

	return &state, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body, result interface{}) error {
	var payload io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}

		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return fmt.Errorf("failed to create new http '%s' request for '%s', cause: %w", method, endpoint, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to get response from '%s', cause: %w", endpoint, err)
	}

	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			logger.Warnf("failed to close response body: %s", errClose)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("unable to read response from '%s', cause: %w", endpoint, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}

		return fmt.Errorf("unexpected status code [%d] from '%s', and message [%s]", resp.StatusCode, endpoint, data)
	}

	if result == nil {
		return nil
	}

	return json.Unmarshal(data, result)
}
