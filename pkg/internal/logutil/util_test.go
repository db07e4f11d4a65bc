/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logutil

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/log"
	spilog "github.com/hyperledger/aries-framework-go/spi/log"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-faber-go/pkg/command"
)

const module = "logutil-test"

type recorder struct {
	lock  sync.Mutex
	lines []string
}

func (r *recorder) add(level, msg string, args ...interface{}) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.lines = append(r.lines, level+" "+fmt.Sprintf(msg, args...))
}

func (r *recorder) last() string {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.lines[len(r.lines)-1]
}

func (r *recorder) GetLogger(string) spilog.Logger { return r }

func (r *recorder) Panicf(msg string, args ...interface{}) { r.add("PANIC", msg, args...) }
func (r *recorder) Fatalf(msg string, args ...interface{}) { r.add("FATAL", msg, args...) }
func (r *recorder) Errorf(msg string, args ...interface{}) { r.add("ERROR", msg, args...) }
func (r *recorder) Warnf(msg string, args ...interface{})  { r.add("WARN", msg, args...) }
func (r *recorder) Infof(msg string, args ...interface{})  { r.add("INFO", msg, args...) }
func (r *recorder) Debugf(msg string, args ...interface{}) { r.add("DEBUG", msg, args...) }

func TestLogUtil(t *testing.T) {
	rec := &recorder{}
	log.Initialize(rec)
	log.SetLevel(module, spilog.DEBUG)

	logger := log.New(module)

	LogInfo(logger, "session", "Publish your DID", "published", CreateKeyValueString("did", "did:cheqd:testnet:1"))
	require.Equal(t,
		"INFO command=[session] action=[Publish your DID] did=[did:cheqd:testnet:1] msg=[published]", rec.last())

	LogDebug(logger, "session", "List proofs", "success")
	require.Equal(t, "DEBUG command=[session] action=[List proofs]  msg=[success]", rec.last())

	LogError(logger, "session", "Send message", command.NewValidationError(command.Code(command.Messaging),
		errors.New("no connection")))
	require.Equal(t,
		"ERROR command=[session] action=[Send message] code=[6000] type=[validation] errMsg=[no connection]",
		rec.last())

	LogError(logger, "session", "Send message", errors.New("plain"), CreateKeyValueString("connection", "c1"))
	require.Equal(t, "ERROR command=[session] action=[Send message] connection=[c1] errMsg=[plain]", rec.last())
}
