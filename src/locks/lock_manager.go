package locks

import (
	"sort"
	"strconv"
	"sync"
)

// Manager hands out named mutexes so matching, pricing and the ledger
// serialize on the same keys: one per currency pair, one per
// (user, currency) balance. Locks are created on first use and kept for
// the process lifetime; the key space is small (pairs x users).
type Manager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates an empty lock manager.
func NewManager() *Manager {
	return &Manager{locks: make(map[string]*sync.Mutex)}
}

func (m *Manager) get(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Lock acquires the mutex for key, returning an unlock func.
func (m *Manager) Lock(key string) func() {
	l := m.get(key)
	l.Lock()
	return l.Unlock
}

// LockAll acquires every key in sorted order so two settlements touching
// the same wallets can never deadlock. Duplicate keys are acquired once.
// The returned func releases them in reverse order.
func (m *Manager) LockAll(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	sort.Strings(uniq)

	held := make([]*sync.Mutex, 0, len(uniq))
	for _, k := range uniq {
		l := m.get(k)
		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// PairKey builds the lock key serializing all matching and price
// mutation for one currency pair.
func PairKey(base, quote string) string {
	return "pair:" + base + "/" + quote
}

// BalanceKey builds the lock key serializing balance mutations for one
// (user, currency) wallet.
func BalanceKey(userID uint, currency string) string {
	return "wallet:" + currency + ":" + strconv.FormatUint(uint64(userID), 10)
}
