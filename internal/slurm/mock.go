package slurm

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a controllable stand-in for Slurm used in development and tests.
type Mock struct {
	mu sync.Mutex

	Usage    map[string]map[string]int64 // account -> cluster -> hours
	Missing  map[string][]string
	Contacts map[string]string
	UsageErr error
	LockErr  error

	Locked  map[string]bool
	Locks   int
	Unlocks int
}

func NewMock() *Mock {
	return &Mock{
		Usage:    map[string]map[string]int64{},
		Missing:  map[string][]string{},
		Contacts: map[string]string{},
		Locked:   map[string]bool{},
	}
}

func (m *Mock) Name() string { return "mock" }

// SetUsage records the hours account has consumed on cluster.
func (m *Mock) SetUsage(account, cluster string, hours int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Usage[account] == nil {
		m.Usage[account] = map[string]int64{}
	}
	m.Usage[account][cluster] = hours
}

func (m *Mock) UsageHours(_ context.Context, account, cluster string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UsageErr != nil {
		return 0, m.UsageErr
	}
	return m.Usage[account][cluster], nil
}

func (m *Mock) MissingAssociations(_ context.Context, account string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Missing[account], nil
}

func (m *Mock) Lock(_ context.Context, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LockErr != nil {
		return m.LockErr
	}
	m.Locked[account] = true
	m.Locks++
	return nil
}

func (m *Mock) Unlock(_ context.Context, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LockErr != nil {
		return m.LockErr
	}
	m.Locked[account] = false
	m.Unlocks++
	return nil
}

func (m *Mock) ContactAddress(_ context.Context, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr, ok := m.Contacts[account]
	if !ok {
		return "", fmt.Errorf("no contact for %s", account)
	}
	return addr, nil
}
