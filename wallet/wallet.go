// Package wallet signs document hashes for optional attestations. Providers expose an
// address, a chain id and a signing primitive; nothing here talks to a contract.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
)

var (
	ErrNoWallet          = errors.New("wallet not connected")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrSignatureMismatch = errors.New("signature does not recover to the wallet address")
)

// Provider is the minimal wallet surface used for attestations.
type Provider interface {
	Address(ctx context.Context) (common.Address, error)
	ChainID(ctx context.Context) (int64, error)
	SignHash(ctx context.Context, hash common.Hash) ([]byte, error)
}

// AccountEvent is delivered when the active account or chain changes.
type AccountEvent struct {
	Address common.Address
	ChainID int64
}

// Notifier is implemented by providers that can report account and chain changes.
// Feed delivery blocks until every subscriber took the event, so subscribers must keep
// draining their channel until they unsubscribe.
type Notifier interface {
	SubscribeAccountChanges(ch chan<- AccountEvent) event.Subscription
}

// KeyProvider is a Provider backed by a local secp256k1 key.
type KeyProvider struct {
	mu      sync.RWMutex
	key     *ecdsa.PrivateKey
	chainID int64
	feed    event.Feed
}

// NewKeyProvider loads a hex encoded private key, with or without 0x prefix.
func NewKeyProvider(hexKey string, chainID int64) (*KeyProvider, error) {
	key, err := parseKey(hexKey)
	if err != nil {
		return nil, err
	}
	return &KeyProvider{key: key, chainID: chainID}, nil
}

// GenerateKeyProvider creates a provider with a fresh random key.
func GenerateKeyProvider(chainID int64) (*KeyProvider, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &KeyProvider{key: key, chainID: chainID}, nil
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid wallet private key: %w", err)
	}
	return key, nil
}

func (k *KeyProvider) Address(context.Context) (common.Address, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return common.Address{}, ErrNoWallet
	}
	return crypto.PubkeyToAddress(k.key.PublicKey), nil
}

func (k *KeyProvider) ChainID(context.Context) (int64, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return 0, ErrNoWallet
	}
	return k.chainID, nil
}

// SignHash signs the personal-message digest of hash. The recovery id is shifted to 27/28.
func (k *KeyProvider) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.mu.RLock()
	key := k.key
	k.mu.RUnlock()
	if key == nil {
		return nil, ErrNoWallet
	}

	sig, err := crypto.Sign(PersonalHash(hash).Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// SetKey switches the active account and notifies subscribers.
func (k *KeyProvider) SetKey(hexKey string) error {
	key, err := parseKey(hexKey)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.key = key
	ev := AccountEvent{Address: crypto.PubkeyToAddress(key.PublicKey), ChainID: k.chainID}
	k.mu.Unlock()

	k.feed.Send(ev)
	return nil
}

// SetChainID switches the active chain and notifies subscribers.
func (k *KeyProvider) SetChainID(chainID int64) {
	k.mu.Lock()
	k.chainID = chainID
	var addr common.Address
	if k.key != nil {
		addr = crypto.PubkeyToAddress(k.key.PublicKey)
	}
	k.mu.Unlock()

	k.feed.Send(AccountEvent{Address: addr, ChainID: chainID})
}

// Disconnect drops the key. Later calls fail with ErrNoWallet.
func (k *KeyProvider) Disconnect() {
	k.mu.Lock()
	k.key = nil
	chainID := k.chainID
	k.mu.Unlock()

	k.feed.Send(AccountEvent{ChainID: chainID})
}

func (k *KeyProvider) SubscribeAccountChanges(ch chan<- AccountEvent) event.Subscription {
	return k.feed.Subscribe(ch)
}

// PersonalHash is keccak256("\x19Ethereum Signed Message:\n32" || hash).
func PersonalHash(hash common.Hash) common.Hash {
	prefix := []byte("\x19Ethereum Signed Message:\n32")
	return crypto.Keccak256Hash(append(prefix, hash.Bytes()...))
}

// Recover returns the address that produced sig over the personal digest of hash.
func Recover(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("%w: signature length is not correct", ErrInvalidSignature)
	}
	if sig[64] != 27 && sig[64] != 28 {
		return common.Address{}, fmt.Errorf("%w: invalid recovery ID", ErrInvalidSignature)
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	normalized[64] -= 27

	pub, err := crypto.SigToPub(PersonalHash(hash).Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature checks that sig over hash was produced by addr.
func VerifySignature(hash common.Hash, sig []byte, addr common.Address) error {
	recovered, err := Recover(hash, sig)
	if err != nil {
		return err
	}
	if recovered != addr {
		return ErrSignatureMismatch
	}
	return nil
}
