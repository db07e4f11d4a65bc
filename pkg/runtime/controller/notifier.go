/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/hyperledger/aries-faber-go/pkg/runtime"
)

const postState = "post_state"

// incoming is the envelope the agent notifier wraps every topic message in.
type incoming struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message"`
}

// stateMsg is a protocol state transition as published on the *_states topics.
type stateMsg struct {
	ProtocolName string
	StateID      string
	Type         string
	Message      map[string]interface{}
	Properties   map[string]interface{}
}

type stateProperties struct {
	ConnectionID   string `mapstructure:"connectionID"`
	InvitationID   string `mapstructure:"invitationID"`
	ParentThreadID string `mapstructure:"parentThreadID"`
	PIID           string `mapstructure:"piid"`
	TheirDID       string `mapstructure:"theirDID"`
}

// basicMsg is the body the agent forwards for a registered message service.
type basicMsg struct {
	Message  map[string]interface{} `json:"message"`
	MyDID    string                 `json:"mydid"`
	TheirDID string                 `json:"theirdid"`
}

type subscriber struct {
	topic runtime.Topic
	ch    chan<- runtime.Event
}

type subscription struct {
	c  *Client
	id int
}

func (s *subscription) Unsubscribe() {
	s.c.subsLock.Lock()
	delete(s.c.subscribers, s.id)
	s.c.subsLock.Unlock()
}

// Subscribe registers ch for topic. Events are dropped for a subscriber whose channel is full.
func (c *Client) Subscribe(topic runtime.Topic, ch chan<- runtime.Event) (runtime.Subscription, error) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	c.nextID++
	c.subscribers[c.nextID] = &subscriber{topic: topic, ch: ch}

	return &subscription{c: c, id: c.nextID}, nil
}

func (c *Client) publish(e *runtime.Event) {
	c.subsLock.RLock()
	defer c.subsLock.RUnlock()

	for _, s := range c.subscribers {
		if s.topic != e.Topic {
			continue
		}

		select {
		case s.ch <- *e:
		default:
			logger.Warnf("dropping %s event %s for a full subscriber", e.Topic, e.StateID)
		}
	}
}

func (c *Client) isClosed() bool {
	c.subsLock.RLock()
	defer c.subsLock.RUnlock()

	return c.closed
}

func (c *Client) pump(ctx context.Context) error {
	for {
		var msg incoming

		err := wsjson.Read(ctx, c.conn, &msg)
		if err != nil {
			if ctx.Err() != nil || c.isClosed() || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}

			logger.Errorf("agent notifier stopped: %s", err)

			return fmt.Errorf("read notification: %w", err)
		}

		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *incoming) {
	if isActionTopic(msg.Topic) {
		c.enqueueAction(msg)

		return
	}

	e, state, err := decodeEvent(msg)
	if err != nil {
		logger.Warnf("ignoring %s notification %s: %s", msg.Topic, msg.ID, err)

		return
	}

	if e == nil {
		return
	}

	logger.Debugf("notification topic=%s state=%s connection=%s piid=%s",
		e.Topic, e.StateID, e.ConnectionID, e.PIID)

	if e.Topic == runtime.ProofTopic {
		if err := c.recordProof(e, state); err != nil {
			logger.Warnf("record proof %s: %s", e.PIID, err)
		}
	}

	if e.Topic == runtime.IssuanceTopic || e.Topic == runtime.ProofTopic {
		c.settle(e)
	}

	c.publish(e)
}

var errMalformed = errors.New("malformed notification")

// decodeEvent maps a notification to an Event. Pre-state transitions decode to nil.
func decodeEvent(msg *incoming) (*runtime.Event, *stateMsg, error) {
	topic := runtime.Topic(msg.Topic)

	switch topic {
	case runtime.ConnectionTopic, runtime.IssuanceTopic, runtime.ProofTopic:
	case runtime.MessageTopic:
		e, err := decodeBasicMessage(msg.Message)

		return e, nil, err
	default:
		return nil, nil, nil
	}

	var state stateMsg
	if err := json.Unmarshal(msg.Message, &state); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", errMalformed, err)
	}

	if state.Type != postState {
		return nil, nil, nil
	}

	var props stateProperties
	if err := mapstructure.Decode(state.Properties, &props); err != nil {
		return nil, nil, fmt.Errorf("%w: properties: %s", errMalformed, err)
	}

	correlation := props.InvitationID
	if correlation == "" {
		correlation = props.ParentThreadID
	}

	if correlation == "" {
		correlation = parentThreadID(state.Message)
	}

	return &runtime.Event{
		Topic:         topic,
		StateID:       state.StateID,
		ProtocolName:  state.ProtocolName,
		ConnectionID:  props.ConnectionID,
		CorrelationID: correlation,
		PIID:          props.PIID,
		TheirDID:      props.TheirDID,
	}, &state, nil
}

func decodeBasicMessage(raw json.RawMessage) (*runtime.Event, error) {
	var body basicMsg
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: %s", errMalformed, err)
	}

	text, _ := body.Message["content"].(string) //nolint:errcheck

	return &runtime.Event{
		Topic:        runtime.MessageTopic,
		ProtocolName: "basicmessage",
		Text:         text,
		TheirDID:     body.TheirDID,
	}, nil
}

func parentThreadID(message map[string]interface{}) string {
	thread, ok := message["~thread"].(map[string]interface{})
	if !ok {
		return ""
	}

	pthid, _ := thread["pthid"].(string) //nolint:errcheck

	return pthid
}
