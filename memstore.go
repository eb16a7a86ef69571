package core

import (
	"context"
	"sort"
	"sync"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// MemoryStore keeps the full ledger state in process. It satisfies
// CollateralStore, DebtStore and EventStore with the same not-found
// semantics a gorm-backed store has, so the two are interchangeable.
type MemoryStore struct {
	mu sync.Mutex

	collateral map[uuid.UUID]map[uuid.UUID]*CollateralBalance
	debts      map[uuid.UUID]*DebtBalance
	events     []*CollateralEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collateral: make(map[uuid.UUID]map[uuid.UUID]*CollateralBalance),
		debts:      make(map[uuid.UUID]*DebtBalance),
	}
}

func (s *MemoryStore) FindCollateral(ctx context.Context, accountId, assetId uuid.UUID) (*CollateralBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byAsset, ok := s.collateral[accountId]; ok {
		if balance, ok := byAsset[assetId]; ok {
			return balance.Clone(), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *MemoryStore) UpsertCollateral(ctx context.Context, balance *CollateralBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byAsset, ok := s.collateral[balance.AccountId]
	if !ok {
		byAsset = make(map[uuid.UUID]*CollateralBalance)
		s.collateral[balance.AccountId] = byAsset
	}
	byAsset[balance.AssetId] = balance.Clone()
	return nil
}

func (s *MemoryStore) ListCollateral(ctx context.Context, accountId uuid.UUID) ([]*CollateralBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byAsset := s.collateral[accountId]
	balances := make([]*CollateralBalance, 0, len(byAsset))
	for _, balance := range byAsset {
		balances = append(balances, balance.Clone())
	}
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].AssetId.String() < balances[j].AssetId.String()
	})
	return balances, nil
}

func (s *MemoryStore) FindDebt(ctx context.Context, accountId uuid.UUID) (*DebtBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if debt, ok := s.debts[accountId]; ok {
		return debt.Clone(), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *MemoryStore) UpsertDebt(ctx context.Context, debt *DebtBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.debts[debt.AccountId] = debt.Clone()
	return nil
}

func (s *MemoryStore) CreateEvent(ctx context.Context, event *CollateralEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *event
	s.events = append(s.events, &copied)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, accountId uuid.UUID, createdBeforeAt, limit int64) ([]*CollateralEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]*CollateralEvent, 0, limit)
	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]
		if accountId != uuid.Nil && event.From != accountId && event.To != accountId {
			continue
		}
		if createdBeforeAt > 0 && event.CreatedAt >= createdBeforeAt {
			continue
		}
		copied := *event
		events = append(events, &copied)
		if limit > 0 && int64(len(events)) >= limit {
			break
		}
	}
	return events, nil
}
