/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/hyperledger/aries-faber-go/pkg/runtime"
)

const (
	invitationID = "5f0e3ffb-3f92-4648-9868-0d6f8889e6f3"
	domain       = "https://faber.example.org"
)

type fakeAgent struct {
	t      *testing.T
	server *httptest.Server
	notify chan interface{}

	lock         sync.Mutex
	connections  map[string]*connectionRecord
	polls        map[string]int
	promote      map[string]int
	accepted     *acceptInvitationRequest
	offers       []*sendOfferRequest
	requests     []*sendRequestPresentationRequest
	messages     []*sendMessageRequest
	registered   []*registerServiceRequest
	unregistered int
	issued       []string
	verified     map[string][]string
}

func newFakeAgent(t *testing.T) *fakeAgent {
	t.Helper()

	a := &fakeAgent{
		t:           t,
		notify:      make(chan interface{}, 16),
		connections: make(map[string]*connectionRecord),
		polls:       make(map[string]int),
		promote:     make(map[string]int),
		verified:    make(map[string][]string),
	}

	router := mux.NewRouter()
	router.HandleFunc("/connections", a.queryConnections).Methods(http.MethodGet)
	router.HandleFunc("/connections/{id}", a.queryConnection).Methods(http.MethodGet)
	router.HandleFunc("/outofband/create-invitation", a.createInvitation).Methods(http.MethodPost)
	router.HandleFunc("/outofband/accept-invitation", a.acceptInvitation).Methods(http.MethodPost)
	router.HandleFunc("/issuecredential/send-offer", a.sendOffer).Methods(http.MethodPost)
	router.HandleFunc("/presentproof/send-request-presentation", a.sendRequest).Methods(http.MethodPost)
	router.HandleFunc("/issuecredential/{piid}/accept-request", a.acceptRequest).Methods(http.MethodPost)
	router.HandleFunc("/presentproof/{piid}/accept-presentation", a.acceptPresentation).Methods(http.MethodPost)
	router.HandleFunc("/message/send", a.sendMessage).Methods(http.MethodPost)
	router.HandleFunc("/message/register-service", a.register).Methods(http.MethodPost)
	router.HandleFunc("/message/unregister-service", a.unregister).Methods(http.MethodPost)
	router.HandleFunc("/ws", a.websocket)

	a.server = httptest.NewServer(router)
	t.Cleanup(a.server.Close)

	return a
}

func (a *fakeAgent) open(t *testing.T) *Client {
	t.Helper()

	c, err := Open(context.Background(), &Config{
		AgentURL:         a.server.URL,
		Label:            "faber.agent",
		InvitationDomain: domain,
		PollInterval:     5 * time.Millisecond,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() }) //nolint:errcheck

	return c
}

func (a *fakeAgent) addConnection(r *connectionRecord) {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.connections[r.ConnectionID] = r
}

func (a *fakeAgent) push(topic runtime.Topic, message interface{}) {
	a.notify <- map[string]interface{}{"id": "n-1", "topic": string(topic), "message": message}
}

func (a *fakeAgent) websocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.notify:
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				return
			}
		}
	}
}

func (a *fakeAgent) queryConnections(w http.ResponseWriter, _ *http.Request) {
	a.lock.Lock()
	defer a.lock.Unlock()

	resp := queryConnectionsResponse{}
	for _, r := range a.connections {
		resp.Results = append(resp.Results, r)
	}

	a.write(w, resp)
}

func (a *fakeAgent) queryConnection(w http.ResponseWriter, r *http.Request) {
	a.lock.Lock()
	defer a.lock.Unlock()

	id := mux.Vars(r)["id"]

	record, ok := a.connections[id]
	if !ok {
		http.Error(w, "data not found", http.StatusNotFound)

		return
	}

	a.polls[id]++
	if n, ok := a.promote[id]; ok && a.polls[id] >= n {
		record.State = string(runtime.StateCompleted)
	}

	a.write(w, queryConnectionResponse{Result: record})
}

func (a *fakeAgent) createInvitation(w http.ResponseWriter, r *http.Request) {
	var req createInvitationRequest
	a.read(r, &req)

	a.write(w, invitationResponse{Invitation: map[string]interface{}{
		"@id":   invitationID,
		"@type": "https://didcomm.org/out-of-band/1.0/invitation",
		"label": req.Label,
	}})
}

func (a *fakeAgent) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptInvitationRequest
	a.read(r, &req)

	a.lock.Lock()
	a.accepted = &req
	a.lock.Unlock()

	a.write(w, acceptInvitationResponse{ConnectionID: "conn-accepted"})
}

func (a *fakeAgent) sendOffer(w http.ResponseWriter, r *http.Request) {
	var req sendOfferRequest
	a.read(r, &req)

	a.lock.Lock()
	a.offers = append(a.offers, &req)
	a.lock.Unlock()

	a.write(w, piidResponse{PIID: "piid-offer"})
}

func (a *fakeAgent) sendRequest(w http.ResponseWriter, r *http.Request) {
	var req sendRequestPresentationRequest
	a.read(r, &req)

	a.lock.Lock()
	a.requests = append(a.requests, &req)
	a.lock.Unlock()

	a.write(w, piidResponse{PIID: "piid-proof"})
}

func (a *fakeAgent) acceptRequest(w http.ResponseWriter, r *http.Request) {
	var req acceptRequestRequest
	a.read(r, &req)

	if req.IssueCredential["@type"] != issueCredentialType {
		http.Error(w, "missing issue credential message", http.StatusBadRequest)

		return
	}

	a.lock.Lock()
	a.issued = append(a.issued, mux.Vars(r)["piid"])
	a.lock.Unlock()

	a.write(w, struct{}{})
}

func (a *fakeAgent) acceptPresentation(w http.ResponseWriter, r *http.Request) {
	var req acceptPresentationRequest
	a.read(r, &req)

	a.lock.Lock()
	a.verified[mux.Vars(r)["piid"]] = req.Names
	a.lock.Unlock()

	a.write(w, struct{}{})
}

func (a *fakeAgent) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	a.read(r, &req)

	a.lock.Lock()
	a.messages = append(a.messages, &req)
	a.lock.Unlock()

	a.write(w, struct{}{})
}

func (a *fakeAgent) register(w http.ResponseWriter, r *http.Request) {
	var req registerServiceRequest
	a.read(r, &req)

	a.lock.Lock()
	a.registered = append(a.registered, &req)
	a.lock.Unlock()

	a.write(w, struct{}{})
}

func (a *fakeAgent) unregister(w http.ResponseWriter, _ *http.Request) {
	a.lock.Lock()
	a.unregistered++
	a.lock.Unlock()

	a.write(w, struct{}{})
}

func (a *fakeAgent) read(r *http.Request, v interface{}) {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.t.Errorf("decode request: %s", err)
	}
}

func (a *fakeAgent) write(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.t.Errorf("encode response: %s", err)
	}
}

func stateNotification(protocol, stateID string, props, message map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"ProtocolName": protocol,
		"StateID":      stateID,
		"Type":         postState,
		"Properties":   props,
		"Message":      message,
	}
}

func actionNotification(protocol, piid, msgType string) map[string]interface{} {
	return map[string]interface{}{
		"ProtocolName": protocol,
		"Properties":   map[string]interface{}{"piid": piid},
		"Message":      map[string]interface{}{"@id": "m-" + piid, "@type": msgType},
	}
}

func receive(t *testing.T, ch <-chan runtime.Event) runtime.Event {
	t.Helper()

	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no event received")
	}

	return runtime.Event{}
}

func TestOpen(t *testing.T) {
	t.Run("registers basic message service", func(t *testing.T) {
		a := newFakeAgent(t)
		a.open(t)

		a.lock.Lock()
		defer a.lock.Unlock()

		require.Len(t, a.registered, 1)
		require.Equal(t, string(runtime.MessageTopic), a.registered[0].Name)
		require.Equal(t, basicMessageType, a.registered[0].Type)
	})

	t.Run("agent not reachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()

		_, err := Open(context.Background(), &Config{AgentURL: server.URL})
		require.Error(t, err)
		require.Contains(t, err.Error(), "not reachable")
	})

	t.Run("agent answers with error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "starting", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := Open(context.Background(), &Config{AgentURL: server.URL})
		require.Error(t, err)
		require.Contains(t, err.Error(), "unexpected status code [503]")
	})
}

func TestWebsocketURL(t *testing.T) {
	require.Equal(t, "ws://localhost:8082/ws", websocketURL("http://localhost:8082"))
	require.Equal(t, "wss://agent.example.org/ws", websocketURL("https://agent.example.org/"))
	require.Equal(t, "ws://agent/ws", websocketURL("ws://agent"))
}

func TestInvitations(t *testing.T) {
	a := newFakeAgent(t)
	c := a.open(t)

	invitation, err := c.CreateInvitation(context.Background())
	require.NoError(t, err)
	require.Equal(t, invitationID, invitation.ID)
	require.True(t, strings.HasPrefix(invitation.URL, domain+"?oob="))

	decoded, err := decodeInvitation(invitation.URL)
	require.NoError(t, err)
	require.Equal(t, "faber.agent", decoded["label"])

	accepted, err := c.AcceptInvitation(context.Background(), invitation.URL)
	require.NoError(t, err)
	require.Equal(t, invitationID, accepted.ID)
	require.Equal(t, "conn-accepted", accepted.ConnectionID)

	a.lock.Lock()
	require.Equal(t, "faber.agent", a.accepted.MyLabel)
	require.Equal(t, invitationID, a.accepted.Invitation["@id"])
	a.lock.Unlock()

	t.Run("invalid links", func(t *testing.T) {
		for _, link := range []string{"https://faber.example.org", "https://faber.example.org?oob=%%", "%zz",
			"https://faber.example.org?oob=bm90IGpzb24"} {
			_, err := c.AcceptInvitation(context.Background(), link)
			require.ErrorIs(t, err, ErrInvalidInvitation, link)
		}
	})
}

func TestFindByCorrelationID(t *testing.T) {
	a := newFakeAgent(t)
	c := a.open(t)

	a.addConnection(&connectionRecord{ConnectionID: "c1", State: "requested", InvitationID: "inv-1"})
	a.addConnection(&connectionRecord{ConnectionID: "c2", State: "completed", ParentThreadID: "inv-2", TheirLabel: "alice"})

	r, err := c.FindByCorrelationID(context.Background(), "inv-1")
	require.NoError(t, err)
	require.Equal(t, "c1", r.ConnectionID)
	require.Equal(t, runtime.StateRequested, r.State)

	r, err = c.FindByCorrelationID(context.Background(), "inv-2")
	require.NoError(t, err)
	require.Equal(t, "c2", r.ConnectionID)
	require.Equal(t, "inv-2", r.CorrelationID)
	require.True(t, r.Completed())

	_, err = c.FindByCorrelationID(context.Background(), "inv-3")
	require.ErrorIs(t, err, runtime.ErrRecordNotFound)
}

func TestWaitUntilState(t *testing.T) {
	a := newFakeAgent(t)
	c := a.open(t)

	t.Run("reaches state", func(t *testing.T) {
		a.addConnection(&connectionRecord{ConnectionID: "c1", State: "responded", MyDID: "did:peer:faber"})
		a.lock.Lock()
		a.promote["c1"] = 3
		a.lock.Unlock()

		r, err := c.WaitUntilState(context.Background(), "c1", runtime.StateCompleted)
		require.NoError(t, err)
		require.True(t, r.Completed())
		require.Equal(t, "did:peer:faber", r.MyDID)
	})

	t.Run("abandoned", func(t *testing.T) {
		a.addConnection(&connectionRecord{ConnectionID: "c2", State: "abandoned"})

		_, err := c.WaitUntilState(context.Background(), "c2", runtime.StateCompleted)
		require.Error(t, err)
		require.Contains(t, err.Error(), "abandoned")
	})

	t.Run("deadline", func(t *testing.T) {
		a.addConnection(&connectionRecord{ConnectionID: "c3", State: "requested"})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := c.WaitUntilState(ctx, "c3", runtime.StateCompleted)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestNotifications(t *testing.T) {
	a := newFakeAgent(t)
	c := a.open(t)

	connections, release, err := runtime.Listen(c, runtime.ConnectionTopic, 4)
	require.NoError(t, err)

	defer release()

	messages, releaseMessages, err := runtime.Listen(c, runtime.MessageTopic, 4)
	require.NoError(t, err)

	defer releaseMessages()

	pre := stateNotification("didexchange", "requested", map[string]interface{}{"connectionID": "c0"}, nil)
	pre["Type"] = "pre_state"
	a.push(runtime.ConnectionTopic, pre)
	a.push(runtime.Topic("unknown"), map[string]interface{}{})
	a.push(runtime.ConnectionTopic, stateNotification("didexchange", "completed",
		map[string]interface{}{"connectionID": "c1", "invitationID": "inv-1"}, nil))
	a.push(runtime.ConnectionTopic, stateNotification("didexchange", "responded",
		map[string]interface{}{"connectionID": "c2"},
		map[string]interface{}{"~thread": map[string]interface{}{"pthid": "inv-2"}}))
	a.push(runtime.MessageTopic, map[string]interface{}{
		"message":  map[string]interface{}{"content": "hello faber"},
		"mydid":    "did:peer:faber",
		"theirdid": "did:peer:alice",
	})

	e := receive(t, connections)
	require.Equal(t, "c1", e.ConnectionID)
	require.Equal(t, "inv-1", e.CorrelationID)
	require.Equal(t, "completed", e.StateID)
	require.Equal(t, "didexchange", e.ProtocolName)

	e = receive(t, connections)
	require.Equal(t, "c2", e.ConnectionID)
	require.Equal(t, "inv-2", e.CorrelationID)

	e = receive(t, messages)
	require.Equal(t, "hello faber", e.Text)
	require.Equal(t, "did:peer:alice", e.TheirDID)
}

func TestExchanges(t *testing.T) {
	a := newFakeAgent(t)
	c := a.open(t)

	a.addConnection(&connectionRecord{
		ConnectionID: "c1", State: "completed", MyDID: "did:peer:faber", TheirDID: "did:peer:alice",
	})
	a.addConnection(&connectionRecord{ConnectionID: "c2", State: "requested"})

	t.Run("offer credential", func(t *testing.T) {
		piid, err := c.OfferCredential(context.Background(), &runtime.CredentialOffer{
			ConnectionID:           "c1",
			CredentialDefinitionID: "did:cheqd:testnet:abc/resources/def",
			Attributes:             []runtime.Attribute{{Name: "name", Value: "Alice Smith"}},
		})
		require.NoError(t, err)
		require.Equal(t, "piid-offer", piid)

		a.lock.Lock()
		defer a.lock.Unlock()

		require.Len(t, a.offers, 1)
		require.Equal(t, "did:peer:faber", a.offers[0].MyDID)
		require.Equal(t, "did:peer:alice", a.offers[0].TheirDID)
		require.Equal(t, offerCredentialType, a.offers[0].OfferCredential["@type"])

		raw, err := json.Marshal(a.offers[0].OfferCredential)
		require.NoError(t, err)
		require.Contains(t, string(raw), "did:cheqd:testnet:abc/resources/def")
		require.Contains(t, string(raw), "Alice Smith")
	})

	t.Run("request proof", func(t *testing.T) {
		piid, err := c.RequestProof(context.Background(), &runtime.ProofRequest{
			ConnectionID: "c1",
			Name:         "proof-request",
			Version:      "1.0",
			RequestedAttributes: map[string]runtime.RequestedAttribute{
				"attr1_referent": {Name: "name"},
			},
			RequestedPredicates: map[string]runtime.RequestedPredicate{
				"predicate1_referent": {Name: "age", PType: ">", PValue: 21},
			},
		})
		require.NoError(t, err)
		require.Equal(t, "piid-proof", piid)

		a.lock.Lock()
		defer a.lock.Unlock()

		require.Len(t, a.requests, 1)

		raw, err := json.Marshal(a.requests[0].RequestPresentation)
		require.NoError(t, err)
		require.Contains(t, string(raw), `"p_type":">"`)
		require.Contains(t, string(raw), `"nonce"`)
	})

	t.Run("connection not completed", func(t *testing.T) {
		_, err := c.OfferCredential(context.Background(), &runtime.CredentialOffer{ConnectionID: "c2"})
		require.ErrorIs(t, err, ErrConnectionNotReady)

		_, err = c.RequestProof(context.Background(), &runtime.ProofRequest{ConnectionID: "c2"})
		require.ErrorIs(t, err, ErrConnectionNotReady)
	})

	t.Run("unknown connection", func(t *testing.T) {
		_, err := c.OfferCredential(context.Background(), &runtime.CredentialOffer{ConnectionID: "nope"})
		require.ErrorIs(t, err, runtime.ErrRecordNotFound)
	})

	t.Run("send message", func(t *testing.T) {
		require.NoError(t, c.SendMessage(context.Background(), "c1", "hi alice"))

		a.lock.Lock()
		defer a.lock.Unlock()

		require.Len(t, a.messages, 1)
		require.Equal(t, "c1", a.messages[0].ConnectionID)
		require.Equal(t, "hi alice", a.messages[0].MessageBody["content"])
		require.Equal(t, basicMessageType, a.messages[0].MessageBody["@type"])
	})
}

func TestProofBook(t *testing.T) {
	a := newFakeAgent(t)
	c := a.open(t)

	proofs, release, err := runtime.Listen(c, runtime.ProofTopic, 4)
	require.NoError(t, err)

	defer release()

	presentation := map[string]interface{}{
		"@type": "https://didcomm.org/present-proof/2.0/presentation",
		"presentations~attach": []interface{}{map[string]interface{}{
			"data": map[string]interface{}{"json": map[string]interface{}{
				"requested_proof": map[string]interface{}{
					"revealed_attrs": map[string]interface{}{
						"attr1_referent": map[string]interface{}{"raw": "Alice Smith", "encoded": "1234"},
					},
					"predicates": map[string]interface{}{
						"predicate1_referent": map[string]interface{}{"sub_proof_index": 0},
					},
				},
			}},
		}},
	}

	props := map[string]interface{}{"piid": "piid-1", "connectionID": "c1"}

	a.push(runtime.ProofTopic, stateNotification("present-proof", runtime.ProofPresentationRecv, props, presentation))

	e := receive(t, proofs)
	require.Equal(t, runtime.ProofPresentationRecv, e.StateID)

	list, err := c.ListProofs(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.False(t, list[0].Verified)
	require.Equal(t, "Alice Smith", list[0].Revealed["attr1_referent"])
	require.Equal(t, []string{"predicate1_referent"}, list[0].Predicates)

	a.push(runtime.ProofTopic, stateNotification("present-proof", runtime.ProtocolDone, props,
		map[string]interface{}{"@type": "https://didcomm.org/present-proof/2.0/ack"}))

	e = receive(t, proofs)
	require.Equal(t, runtime.ProtocolDone, e.StateID)

	list, err = c.ListProofs(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].Verified)
	require.Equal(t, "c1", list[0].ConnectionID)
	require.Equal(t, "Alice Smith", list[0].Revealed["attr1_referent"])
}

func TestActionContinuation(t *testing.T) {
	a := newFakeAgent(t)
	c := a.open(t)

	a.addConnection(&connectionRecord{
		ConnectionID: "c1", State: "completed", MyDID: "did:peer:faber", TheirDID: "did:peer:alice",
	})

	offerPIID, err := c.OfferCredential(context.Background(), &runtime.CredentialOffer{ConnectionID: "c1"})
	require.NoError(t, err)

	proofPIID, err := c.RequestProof(context.Background(), &runtime.ProofRequest{
		ConnectionID: "c1", Name: "proof-request", Version: "1.0",
	})
	require.NoError(t, err)

	proofs, release, err := runtime.Listen(c, runtime.ProofTopic, 4)
	require.NoError(t, err)

	defer release()

	a.push(runtime.Topic(issuanceActionTopic), actionNotification("issue-credential", "piid-foreign",
		"https://didcomm.org/issue-credential/2.0/request-credential"))
	a.push(runtime.Topic(issuanceActionTopic), actionNotification("issue-credential", offerPIID,
		"https://didcomm.org/issue-credential/2.0/propose-credential"))
	a.push(runtime.Topic(issuanceActionTopic), actionNotification("issue-credential", offerPIID,
		"https://didcomm.org/issue-credential/2.0/request-credential"))
	a.push(runtime.Topic(proofActionTopic), actionNotification("present-proof", proofPIID,
		"https://didcomm.org/present-proof/2.0/presentation"))

	require.Eventually(t, func() bool {
		a.lock.Lock()
		defer a.lock.Unlock()

		_, ok := a.verified[proofPIID]

		return len(a.issued) == 1 && ok
	}, 2*time.Second, 10*time.Millisecond)

	a.lock.Lock()
	require.Equal(t, []string{offerPIID}, a.issued)
	require.Equal(t, []string{"proof-request"}, a.verified[proofPIID])
	a.lock.Unlock()

	a.push(runtime.ProofTopic, stateNotification("present-proof", runtime.ProtocolDone,
		map[string]interface{}{"piid": proofPIID, "connectionID": "c1"},
		map[string]interface{}{"@type": "https://didcomm.org/present-proof/2.0/ack"}))

	e := receive(t, proofs)
	require.Equal(t, runtime.ProtocolDone, e.StateID)

	list, err := c.ListProofs(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].Verified)

	_, ok := c.tracked(proofPIID)
	require.False(t, ok)

	_, ok = c.tracked(offerPIID)
	require.True(t, ok)
}

func TestClose(t *testing.T) {
	a := newFakeAgent(t)
	c := a.open(t)

	ch := make(chan runtime.Event, 1)
	_, err := c.Subscribe(runtime.ConnectionTopic, ch)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Subscribe(runtime.ConnectionTopic, ch)
	require.ErrorIs(t, err, ErrClosed)

	a.lock.Lock()
	defer a.lock.Unlock()

	require.Equal(t, 1, a.unregistered)
}
