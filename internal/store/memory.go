package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"crcbank/internal/model"
)

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState
}

type memoryState struct {
	nextID             int64
	proposals          map[string]model.Proposal
	investments        map[int64]model.Investment
	investmentArchives []model.InvestmentArchive
	proposalArchives   []model.ProposalArchive
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{
		proposals:   map[string]model.Proposal{},
		investments: map[int64]model.Investment{},
	}}
}

func (st memoryState) clone() memoryState {
	out := memoryState{
		nextID:             st.nextID,
		proposals:          make(map[string]model.Proposal, len(st.proposals)),
		investments:        make(map[int64]model.Investment, len(st.investments)),
		investmentArchives: append([]model.InvestmentArchive(nil), st.investmentArchives...),
		proposalArchives:   append([]model.ProposalArchive(nil), st.proposalArchives...),
	}
	for k, p := range st.proposals {
		p.Allocations = p.Allocations.Clone()
		out.proposals[k] = p
	}
	for k, inv := range st.investments {
		out.investments[k] = inv
	}
	return out
}

func (m *MemoryStore) id(requested int64) int64 {
	if requested > m.state.nextID {
		m.state.nextID = requested
		return requested
	}
	if requested != 0 {
		return requested
	}
	m.state.nextID++
	return m.state.nextID
}

// Atomic snapshots the state and restores it if fn fails.
func (m *MemoryStore) Atomic(_ context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	saved := m.state.clone()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.state = saved
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) FindProposal(_ context.Context, account string) (*model.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.proposals[account]
	if !ok {
		return nil, ErrNotFound
	}
	p.Allocations = p.Allocations.Clone()
	return &p, nil
}

func (m *MemoryStore) ListProposals(_ context.Context) ([]model.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Proposal, 0, len(m.state.proposals))
	for _, p := range m.state.proposals {
		p.Allocations = p.Allocations.Clone()
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) InsertProposal(_ context.Context, p *model.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.proposals[p.Account]; ok {
		return fmt.Errorf("insert proposal %s: unique constraint", p.Account)
	}
	p.ID = m.id(p.ID)
	cp := *p
	cp.Allocations = p.Allocations.Clone()
	m.state.proposals[p.Account] = cp
	return nil
}

func (m *MemoryStore) UpdateProposal(_ context.Context, p *model.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for account, existing := range m.state.proposals {
		if existing.ID != p.ID {
			continue
		}
		delete(m.state.proposals, account)
		cp := *p
		cp.Allocations = p.Allocations.Clone()
		m.state.proposals[p.Account] = cp
		return nil
	}
	return ErrNotFound
}

func (m *MemoryStore) FindInvestments(_ context.Context, account string) ([]model.Investment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Investment
	for _, inv := range m.state.investments {
		if inv.Account == account {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListInvestments(_ context.Context) ([]model.Investment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Investment, 0, len(m.state.investments))
	for _, inv := range m.state.investments {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) InsertInvestment(_ context.Context, inv *model.Investment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv.ID = m.id(inv.ID)
	m.state.investments[inv.ID] = *inv
	return nil
}

func (m *MemoryStore) UpdateInvestment(_ context.Context, inv *model.Investment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.investments[inv.ID]; !ok {
		return ErrNotFound
	}
	m.state.investments[inv.ID] = *inv
	return nil
}

func (m *MemoryStore) DeleteInvestment(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.investments[id]; !ok {
		return ErrNotFound
	}
	delete(m.state.investments, id)
	return nil
}

func (m *MemoryStore) InsertInvestmentArchive(_ context.Context, a *model.InvestmentArchive) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id(0)
	m.state.investmentArchives = append(m.state.investmentArchives, *a)
	return nil
}

func (m *MemoryStore) FindInvestmentArchives(_ context.Context, proposalID int64) ([]model.InvestmentArchive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.InvestmentArchive
	for _, a := range m.state.investmentArchives {
		if a.ProposalID == proposalID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryStore) InsertProposalArchive(_ context.Context, a *model.ProposalArchive) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id(0)
	cp := *a
	cp.Allocations = a.Allocations.Clone()
	cp.Usage = a.Usage.Clone()
	m.state.proposalArchives = append(m.state.proposalArchives, cp)
	return nil
}

func (m *MemoryStore) FindProposalArchives(_ context.Context, account string) ([]model.ProposalArchive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ProposalArchive
	for _, a := range m.state.proposalArchives {
		if a.Account == account {
			out = append(out, a)
		}
	}
	return out, nil
}
