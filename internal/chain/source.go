// Package chain reads raw account state over Solana RPC.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Account is a fetched account with its raw data.
type Account struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// AccountSource returns nil (not an error) for accounts that do not exist.
// GetMultipleAccounts keeps the order of keys.
type AccountSource interface {
	GetAccount(ctx context.Context, key solana.PublicKey) (*Account, error)
	GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*Account, error)
}

// Observer receives one call per RPC round trip.
type Observer interface {
	ObserveRPC(method string, elapsed time.Duration, err error)
}

type RPCSource struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
	observer   Observer
}

func NewRPCSource(url string, commitment rpc.CommitmentType, observer Observer) *RPCSource {
	return &RPCSource{
		client:     rpc.New(url),
		commitment: commitment,
		observer:   observer,
	}
}

func (s *RPCSource) GetAccount(ctx context.Context, key solana.PublicKey) (*Account, error) {
	started := time.Now()
	resp, err := s.client.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{Commitment: s.commitment})
	if errors.Is(err, rpc.ErrNotFound) {
		err = nil
		resp = nil
	}
	s.observe("getAccountInfo", started, err)
	if err != nil {
		return nil, fmt.Errorf("getAccountInfo %s: %w", key, err)
	}
	if resp == nil || resp.Value == nil {
		return nil, nil
	}
	return fromRPC(key, resp.Value), nil
}

func (s *RPCSource) GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*Account, error) {
	started := time.Now()
	resp, err := s.client.GetMultipleAccountsWithOpts(ctx, keys, &rpc.GetMultipleAccountsOpts{Commitment: s.commitment})
	s.observe("getMultipleAccounts", started, err)
	if err != nil {
		return nil, fmt.Errorf("getMultipleAccounts (%d keys): %w", len(keys), err)
	}
	if resp == nil {
		return nil, nil
	}

	out := make([]*Account, len(resp.Value))
	for i, acc := range resp.Value {
		if acc == nil || i >= len(keys) {
			continue
		}
		out[i] = fromRPC(keys[i], acc)
	}
	return out, nil
}

func (s *RPCSource) observe(method string, started time.Time, err error) {
	if s.observer != nil {
		s.observer.ObserveRPC(method, time.Since(started), err)
	}
}

func fromRPC(key solana.PublicKey, acc *rpc.Account) *Account {
	out := &Account{
		Address:  key,
		Owner:    acc.Owner,
		Lamports: acc.Lamports,
	}
	if acc.Data != nil {
		out.Data = acc.Data.GetBinary()
	}
	return out
}

// StaticSource serves accounts from memory. It backs offline replays of
// captured snapshots and tests.
type StaticSource struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*Account
	calls    []int
}

func NewStaticSource() *StaticSource {
	return &StaticSource{accounts: make(map[solana.PublicKey]*Account)}
}

func (s *StaticSource) Put(acc Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acc.Address] = &acc
}

func (s *StaticSource) Delete(key solana.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, key)
}

// Batches returns the key count of every call made so far, in order.
func (s *StaticSource) Batches() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.calls...)
}

func (s *StaticSource) GetAccount(ctx context.Context, key solana.PublicKey) (*Account, error) {
	accounts, err := s.GetMultipleAccounts(ctx, []solana.PublicKey{key})
	if err != nil {
		return nil, err
	}
	return accounts[0], nil
}

func (s *StaticSource) GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, len(keys))

	out := make([]*Account, len(keys))
	for i, key := range keys {
		if acc, ok := s.accounts[key]; ok {
			cp := *acc
			cp.Data = append([]byte(nil), acc.Data...)
			out[i] = &cp
		}
	}
	return out, nil
}
