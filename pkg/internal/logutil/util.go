/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package logutil formats command log lines as key=[value] pairs.
package logutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-faber-go/pkg/command"
)

// LogError logs a failed command action, with the error code when err is a command error.
func LogError(logger *log.Log, cmd, action string, err error, data ...string) {
	var cmdErr command.Error
	if errors.As(err, &cmdErr) {
		data = append([]string{
			CreateKeyValueString("code", fmt.Sprint(cmdErr.Code())),
			CreateKeyValueString("type", cmdErr.Type().String()),
		}, data...)
	}

	logger.Errorf("command=[%s] action=[%s] %s errMsg=[%s]", cmd, action, strings.Join(data, " "), err)
}

// LogDebug logs a command action at debug level.
func LogDebug(logger *log.Log, cmd, action, msg string, data ...string) {
	logger.Debugf("command=[%s] action=[%s] %s msg=[%s]", cmd, action, strings.Join(data, " "), msg)
}

// LogInfo logs a command action at info level.
func LogInfo(logger *log.Log, cmd, action, msg string, data ...string) {
	logger.Infof("command=[%s] action=[%s] %s msg=[%s]", cmd, action, strings.Join(data, " "), msg)
}

// CreateKeyValueString creates a key=[value] string.
func CreateKeyValueString(key, val string) string {
	return fmt.Sprintf("%s=[%s]", key, val)
}
