/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package controller binds the faber runtime to an aries agent through its REST controller API
// and websocket notifier.
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"github.com/hyperledger/aries-faber-go/pkg/runtime"
)

var logger = log.New("aries-faber/runtime")

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultHTTPTimeout  = 30 * time.Second
	proofStoreName      = "faber_proofs"
	maxErrorBody        = 512
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("runtime closed")

// Config configures the agent binding.
type Config struct {
	// AgentURL is the base URL of the aries REST controller.
	AgentURL string
	// WebSocketURL is the notifier endpoint, derived from AgentURL when empty.
	WebSocketURL string
	Label        string
	// InvitationDomain prefixes invitation URLs handed to holders.
	InvitationDomain string
	// StartupRetries bounds the one second retries while waiting for the agent.
	StartupRetries uint64
	PollInterval   time.Duration
	HTTPClient     *http.Client
	// StoreProvider keeps the proof book, in memory by default.
	StoreProvider storage.Provider
}

// Client is a runtime.Runtime backed by an aries agent.
type Client struct {
	cfg    *Config
	http   *http.Client
	conn   *websocket.Conn
	proofs storage.Store
	group  *errgroup.Group
	cancel context.CancelFunc

	subsLock    sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	closed      bool
	closeOnce   sync.Once
	closeErr    error

	pendingLock sync.Mutex
	pending     map[string]string
	actions     chan *action
}

// Open waits for the agent to answer, connects to its notifier and starts dispatching
// notifications to subscribers.
func Open(ctx context.Context, cfg *Config) (*Client, error) {
	c := &Client{
		cfg:         cfg,
		http:        cfg.HTTPClient,
		subscribers: make(map[int]*subscriber),
		pending:     make(map[string]string),
		actions:     make(chan *action, actionQueueSize),
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: defaultHTTPTimeout}
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	if cfg.WebSocketURL == "" {
		cfg.WebSocketURL = websocketURL(cfg.AgentURL)
	}

	provider := cfg.StoreProvider
	if provider == nil {
		provider = mem.NewProvider()
	}

	store, err := provider.OpenStore(proofStoreName)
	if err != nil {
		return nil, fmt.Errorf("open proof store: %w", err)
	}

	c.proofs = store

	if err := c.waitForAgent(ctx); err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, cfg.WebSocketURL, nil) //nolint:bodyclose
	if err != nil {
		return nil, fmt.Errorf("connect to agent notifier %s: %w", cfg.WebSocketURL, err)
	}

	c.conn = conn

	if err := c.registerMessageService(ctx); err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "setup failed") //nolint:errcheck

		return nil, err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(pumpCtx)

	c.cancel = cancel
	c.group = group

	group.Go(func() error {
		return c.pump(groupCtx)
	})

	group.Go(func() error {
		return c.continueActions(groupCtx)
	})

	logger.Infof("connected to agent %s", cfg.AgentURL)

	return c, nil
}

func websocketURL(agentURL string) string {
	u := strings.TrimSuffix(agentURL, "/") + "/ws"

	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}

	return u
}

func (c *Client) waitForAgent(ctx context.Context) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), c.cfg.StartupRetries), ctx)

	err := backoff.RetryNotify(
		func() error {
			return c.send(ctx, http.MethodGet, "/connections", nil, nil)
		},
		b,
		func(retryErr error, t time.Duration) {
			logger.Warnf("failed to reach agent at %s, will sleep for %s before trying again: %s",
				c.cfg.AgentURL, t, retryErr)
		},
	)
	if err != nil {
		return fmt.Errorf("agent %s not reachable: %w", c.cfg.AgentURL, err)
	}

	return nil
}

// Close stops dispatching notifications and continuing actions, drops every subscription and
// unregisters the basic message service. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.subsLock.Lock()
		c.closed = true
		c.subscribers = make(map[int]*subscriber)
		c.subsLock.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), defaultHTTPTimeout)
		defer cancel()

		if err := c.unregisterMessageService(ctx); err != nil {
			logger.Warnf("unregister message service: %s", err)
		}

		if err := c.conn.Close(websocket.StatusNormalClosure, "faber closing"); err != nil {
			logger.Debugf("close notifier connection: %s", err)
		}

		c.cancel()

		c.closeErr = c.group.Wait()

		if err := c.proofs.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})

	return c.closeErr
}

func (c *Client) send(ctx context.Context, method, path string, body, result interface{}) error {
	var payload io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		payload = bytes.NewReader(raw)
	}

	destination := strings.TrimSuffix(c.cfg.AgentURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, destination, payload)
	if err != nil {
		return fmt.Errorf("failed to create new http '%s' request for '%s', cause: %w", method, destination, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to get response from '%s', cause: %w", destination, err)
	}

	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			logger.Warnf("failed to close response body: %s", errClose)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("unable to read response from '%s', cause: %w", destination, err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}

		return &httpError{status: resp.StatusCode, destination: destination, body: string(data)}
	}

	if result == nil {
		return nil
	}

	return json.Unmarshal(data, result)
}

type httpError struct {
	status      int
	destination string
	body        string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("failed to get successful response from '%s', unexpected status code [%d], "+
		"and message [%s]", e.destination, e.status, e.body)
}

var _ runtime.Runtime = (*Client)(nil)
