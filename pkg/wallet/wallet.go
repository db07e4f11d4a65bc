/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package wallet persists the agent's ledger account: a cheqd address, its recovery phrase and
// the seed both are derived from.
package wallet

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcutil/bech32"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck

	"github.com/hyperledger/aries-framework-go/component/log"
)

var logger = log.New("aries-faber/wallet")

const (
	// AddressPrefix is the bech32 human readable part of cheqd account addresses.
	AddressPrefix = "cheqd"

	seedSize = 32
	fileMode = 0o600
)

// Wallet is the persisted account material.
type Wallet struct {
	Address  string `json:"address"`
	Mnemonic string `json:"mnemonic"`
	Seed     string `json:"seed"`
}

// SeedBytes decodes the hex encoded seed.
func (w *Wallet) SeedBytes() ([]byte, error) {
	seed, err := hex.DecodeString(w.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "decode seed")
	}

	return seed, nil
}

// Generate creates a wallet from a fresh random seed.
func Generate() (*Wallet, error) {
	seed := make([]byte, seedSize)

	if _, err := rand.Read(seed); err != nil {
		return nil, errors.Wrap(err, "read random seed")
	}

	return FromSeed(seed)
}

// FromSeed derives the mnemonic and address for seed.
func FromSeed(seed []byte) (*Wallet, error) {
	mnemonic, err := bip39.NewMnemonic(seed)
	if err != nil {
		return nil, errors.Wrap(err, "create mnemonic")
	}

	address, err := Address(seed)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		Address:  address,
		Mnemonic: mnemonic,
		Seed:     hex.EncodeToString(seed),
	}, nil
}

// Address derives the cheqd account address of the secp256k1 key whose private scalar is seed.
func Address(seed []byte) (string, error) {
	if len(seed) != seedSize {
		return "", errors.Errorf("seed must be %d bytes, got %d", seedSize, len(seed))
	}

	_, pub := btcec.PrivKeyFromBytes(btcec.S256(), seed)

	sha := sha256.Sum256(pub.SerializeCompressed())

	hasher := ripemd160.New()
	if _, err := hasher.Write(sha[:]); err != nil {
		return "", errors.Wrap(err, "hash public key")
	}

	data, err := bech32.ConvertBits(hasher.Sum(nil), 8, 5, true)
	if err != nil {
		return "", errors.Wrap(err, "convert address bits")
	}

	address, err := bech32.Encode(AddressPrefix, data)
	if err != nil {
		return "", errors.Wrap(err, "encode address")
	}

	return address, nil
}

// LoadOrCreate loads the wallet stored at path verbatim, or generates and stores a new one when
// the file does not exist. The returned bool reports whether the wallet was created.
func LoadOrCreate(path string) (*Wallet, bool, error) {
	w, err := Load(path)
	if err == nil {
		return w, false, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}

	w, err = Generate()
	if err != nil {
		return nil, false, err
	}

	if err := Save(path, w); err != nil {
		return nil, false, err
	}

	logger.Infof("created wallet %s for address %s", path, w.Address)

	return w, true, nil
}

// Load reads the wallet stored at path.
func Load(path string) (*Wallet, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrapf(err, "read wallet %s", path)
	}

	var w Wallet

	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrapf(err, "parse wallet %s", path)
	}

	if w.Address == "" || w.Seed == "" {
		return nil, errors.Errorf("wallet %s is incomplete", path)
	}

	return &w, nil
}

// Save writes w to path through a temporary file, so a reader never sees a partial wallet.
func Save(path string, w *Wallet) error {
	raw, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal wallet")
	}

	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "create wallet dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".wallet-*")
	if err != nil {
		return errors.Wrap(err, "create temp wallet")
	}

	defer func() {
		if _, statErr := os.Stat(tmp.Name()); statErr == nil {
			_ = os.Remove(tmp.Name()) //nolint:errcheck
		}
	}()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close() //nolint:errcheck

		return errors.Wrap(err, "write temp wallet")
	}

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close() //nolint:errcheck

		return errors.Wrap(err, "chmod temp wallet")
	}

	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp wallet")
	}

	return errors.Wrapf(os.Rename(tmp.Name(), path), "store wallet %s", path)
}
