/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

const (
	envPrefix = "FABER_"

	configFlagName  = "config"
	configEnvKey    = "FABER_CONFIG"
	configFlagUsage = "Path to a YAML file with any of the settings below, keyed by flag name." +
		" Alternatively, this can be set with the following environment variable: " + configEnvKey

	agentURLFlagName      = "agent-url"
	agentURLEnvKey        = "FABER_AGENT_URL"
	agentURLFlagShorthand = "a"
	agentURLFlagUsage     = "URL of the aries agent REST controller." +
		" Alternatively, this can be set with the following environment variable: " + agentURLEnvKey

	agentWSURLFlagName  = "agent-ws-url"
	agentWSURLEnvKey    = "FABER_AGENT_WS_URL"
	agentWSURLFlagUsage = "URL of the agent websocket notifier. Defaults to <agent-url>/ws." +
		" Alternatively, this can be set with the following environment variable: " + agentWSURLEnvKey

	agentTimeoutFlagName  = "agent-timeout"
	agentTimeoutEnvKey    = "FABER_AGENT_TIMEOUT"
	agentTimeoutFlagUsage = "Total time in seconds to wait until the agent is available before giving up." +
		" Alternatively, this can be set with the following environment variable: " + agentTimeoutEnvKey

	labelFlagName      = "label"
	labelEnvKey        = "FABER_LABEL"
	labelFlagShorthand = "l"
	labelFlagUsage     = "Label used in invitations and DID exchange." +
		" Alternatively, this can be set with the following environment variable: " + labelEnvKey

	invitationDomainFlagName  = "invitation-domain"
	invitationDomainEnvKey    = "FABER_INVITATION_DOMAIN"
	invitationDomainFlagUsage = "Domain invitation links are built on." +
		" Alternatively, this can be set with the following environment variable: " + invitationDomainEnvKey

	registrarURLFlagName  = "registrar-url"
	registrarURLEnvKey    = "FABER_REGISTRAR_URL"
	registrarURLFlagUsage = "URL of the DID registrar." +
		" Alternatively, this can be set with the following environment variable: " + registrarURLEnvKey

	resolverURLFlagName  = "resolver-url"
	resolverURLEnvKey    = "FABER_RESOLVER_URL"
	resolverURLFlagUsage = "URL of the DID resolver." +
		" Alternatively, this can be set with the following environment variable: " + resolverURLEnvKey

	ledgerAPIURLFlagName  = "ledger-api-url"
	ledgerAPIURLEnvKey    = "FABER_LEDGER_API_URL"
	ledgerAPIURLFlagUsage = "URL of the ledger REST API used for balances." +
		" Alternatively, this can be set with the following environment variable: " + ledgerAPIURLEnvKey

	networkFlagName  = "network"
	networkEnvKey    = "FABER_NETWORK"
	networkFlagUsage = "Ledger network DIDs are published on (testnet or mainnet)." +
		" Alternatively, this can be set with the following environment variable: " + networkEnvKey

	walletFileFlagName  = "wallet-file"
	walletFileEnvKey    = "FABER_WALLET_FILE"
	walletFileFlagUsage = "Path of the file holding the ledger account seed. Created when missing." +
		" Alternatively, this can be set with the following environment variable: " + walletFileEnvKey

	connectionTimeoutFlagName  = "connection-timeout"
	connectionTimeoutEnvKey    = "FABER_CONNECTION_TIMEOUT"
	connectionTimeoutFlagUsage = "How long to wait for a holder to act on an invitation, e.g. 40s." +
		" Alternatively, this can be set with the following environment variable: " + connectionTimeoutEnvKey

	completionTimeoutFlagName  = "completion-timeout"
	completionTimeoutEnvKey    = "FABER_COMPLETION_TIMEOUT"
	completionTimeoutFlagUsage = "How long an established connection may take to complete its handshake." +
		" Alternatively, this can be set with the following environment variable: " + completionTimeoutEnvKey

	outcomeTimeoutFlagName  = "outcome-timeout"
	outcomeTimeoutEnvKey    = "FABER_OUTCOME_TIMEOUT"
	outcomeTimeoutFlagUsage = "How long to wait for the holder to answer an offer or proof request." +
		" Alternatively, this can be set with the following environment variable: " + outcomeTimeoutEnvKey

	logLevelFlagName  = "log-level"
	logLevelEnvKey    = "FABER_LOG_LEVEL"
	logLevelFlagUsage = "Log level." +
		" Possible values [INFO] [DEBUG] [ERROR] [WARNING] [CRITICAL] . Defaults to WARNING if not set." +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey
)

// flags lists every setting flag; each is also a koanf key.
var flags = []string{
	agentURLFlagName, agentWSURLFlagName, agentTimeoutFlagName, labelFlagName, invitationDomainFlagName,
	registrarURLFlagName, resolverURLFlagName, ledgerAPIURLFlagName, networkFlagName, walletFileFlagName,
	connectionTimeoutFlagName, completionTimeoutFlagName, outcomeTimeoutFlagName, logLevelFlagName,
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		agentURLFlagName:          "http://localhost:8082",
		agentTimeoutFlagName:      "30",
		labelFlagName:             "faber",
		invitationDomainFlagName:  "http://localhost:11020",
		registrarURLFlagName:      "http://localhost:9080",
		resolverURLFlagName:       "https://resolver.cheqd.net",
		ledgerAPIURLFlagName:      "https://api.cheqd.network",
		networkFlagName:           "testnet",
		walletFileFlagName:        "faber-wallet.json",
		connectionTimeoutFlagName: "40s",
		completionTimeoutFlagName: "20s",
		outcomeTimeoutFlagName:    "5m",
	}
}

type agentParameters struct {
	AgentURL          string        `koanf:"agent-url"`
	AgentWSURL        string        `koanf:"agent-ws-url"`
	AgentTimeout      uint64        `koanf:"agent-timeout"`
	Label             string        `koanf:"label"`
	InvitationDomain  string        `koanf:"invitation-domain"`
	RegistrarURL      string        `koanf:"registrar-url"`
	ResolverURL       string        `koanf:"resolver-url"`
	LedgerAPIURL      string        `koanf:"ledger-api-url"`
	Network           string        `koanf:"network"`
	WalletFile        string        `koanf:"wallet-file"`
	ConnectionTimeout time.Duration `koanf:"connection-timeout"`
	CompletionTimeout time.Duration `koanf:"completion-timeout"`
	OutcomeTimeout    time.Duration `koanf:"outcome-timeout"`
	LogLevel          string        `koanf:"log-level"`
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(configFlagName, "", "", configFlagUsage)
	startCmd.Flags().StringP(agentURLFlagName, agentURLFlagShorthand, "", agentURLFlagUsage)
	startCmd.Flags().StringP(agentWSURLFlagName, "", "", agentWSURLFlagUsage)
	startCmd.Flags().StringP(agentTimeoutFlagName, "", "", agentTimeoutFlagUsage)
	startCmd.Flags().StringP(labelFlagName, labelFlagShorthand, "", labelFlagUsage)
	startCmd.Flags().StringP(invitationDomainFlagName, "", "", invitationDomainFlagUsage)
	startCmd.Flags().StringP(registrarURLFlagName, "", "", registrarURLFlagUsage)
	startCmd.Flags().StringP(resolverURLFlagName, "", "", resolverURLFlagUsage)
	startCmd.Flags().StringP(ledgerAPIURLFlagName, "", "", ledgerAPIURLFlagUsage)
	startCmd.Flags().StringP(networkFlagName, "", "", networkFlagUsage)
	startCmd.Flags().StringP(walletFileFlagName, "", "", walletFileFlagUsage)
	startCmd.Flags().StringP(connectionTimeoutFlagName, "", "", connectionTimeoutFlagUsage)
	startCmd.Flags().StringP(completionTimeoutFlagName, "", "", completionTimeoutFlagUsage)
	startCmd.Flags().StringP(outcomeTimeoutFlagName, "", "", outcomeTimeoutFlagUsage)
	startCmd.Flags().StringP(logLevelFlagName, "", "", logLevelFlagUsage)
}

// getParameters layers defaults, the optional YAML file, FABER_* variables and explicitly set flags,
// in increasing precedence.
func getParameters(cmd *cobra.Command) (*agentParameters, error) {
	k := koanf.New(".")

	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	configFile, err := getUserSetVar(cmd, configFlagName, configEnvKey)
	if err != nil {
		return nil, err
	}

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configFile, err)
		}
	}

	err = k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", "-")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for _, name := range flags {
		if !cmd.Flags().Changed(name) {
			continue
		}

		value, err := cmd.Flags().GetString(name)
		if err != nil {
			return nil, fmt.Errorf(name+" flag not found: %s", err)
		}

		if err := k.Set(name, value); err != nil {
			return nil, err
		}
	}

	parameters := &agentParameters{}
	if err := k.Unmarshal("", parameters); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return parameters, validate(parameters)
}

func validate(p *agentParameters) error {
	required := map[string]string{
		agentURLFlagName:     p.AgentURL,
		labelFlagName:        p.Label,
		registrarURLFlagName: p.RegistrarURL,
		resolverURLFlagName:  p.ResolverURL,
		ledgerAPIURLFlagName: p.LedgerAPIURL,
		walletFileFlagName:   p.WalletFile,
	}

	for _, name := range flags {
		if value, ok := required[name]; ok && value == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}

	timeouts := map[string]time.Duration{
		connectionTimeoutFlagName: p.ConnectionTimeout,
		completionTimeoutFlagName: p.CompletionTimeout,
		outcomeTimeoutFlagName:    p.OutcomeTimeout,
	}

	for _, name := range flags {
		if value, ok := timeouts[name]; ok && value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	return nil
}
