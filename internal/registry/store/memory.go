// Package store provides the persistence layer for the registry ledger:
// in-memory implementations for development and unit tests, and PostgreSQL
// implementations for production.
package store

import (
	"context"
	"sort"
	"sync"

	"dplay/internal/registry/models"
	id "dplay/pkg/domain"
	"dplay/pkg/platform/sentinel"
)

// MemoryListingStore keeps listings in a map. Reads return copies so
// callers cannot mutate stored state outside Execute.
type MemoryListingStore struct {
	mu       sync.RWMutex
	listings map[id.ListingID]*models.Listing
}

func NewMemoryListingStore() *MemoryListingStore {
	return &MemoryListingStore{listings: make(map[id.ListingID]*models.Listing)}
}

func (s *MemoryListingStore) Create(ctx context.Context, listing *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.listings[listing.ID]; exists {
		return sentinel.ErrConflict
	}
	stored := *listing
	s.listings[listing.ID] = &stored
	return nil
}

func (s *MemoryListingStore) FindByID(ctx context.Context, listingID id.ListingID) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	listing, ok := s.listings[listingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *listing
	return &out, nil
}

func (s *MemoryListingStore) List(ctx context.Context, category string) ([]*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Listing, 0, len(s.listings))
	for _, listing := range s.listings {
		if category != "" && listing.Category != category {
			continue
		}
		copied := *listing
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryListingStore) Execute(ctx context.Context, listingID id.ListingID,
	validate func(*models.Listing) error, apply func(*models.Listing)) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.listings[listingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if validate != nil {
		if err := validate(listing); err != nil {
			return nil, err
		}
	}
	apply(listing)
	out := *listing
	return &out, nil
}

// MemoryInstallStore keeps install records keyed by (listing, installer).
type MemoryInstallStore struct {
	mu      sync.RWMutex
	records map[installKey]models.InstallRecord
}

type installKey struct {
	listingID id.ListingID
	installer id.Identity
}

func NewMemoryInstallStore() *MemoryInstallStore {
	return &MemoryInstallStore{records: make(map[installKey]models.InstallRecord)}
}

func (s *MemoryInstallStore) Create(ctx context.Context, record models.InstallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := installKey{listingID: record.ListingID, installer: record.Installer}
	if _, exists := s.records[key]; exists {
		return sentinel.ErrConflict
	}
	s.records[key] = record
	return nil
}

func (s *MemoryInstallStore) Exists(ctx context.Context, listingID id.ListingID, installer id.Identity) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.records[installKey{listingID: listingID, installer: installer}]
	return exists, nil
}

// MemoryAccountStore holds the singleton registry account. Administrator
// and registration fee are fixed at construction.
type MemoryAccountStore struct {
	mu      sync.RWMutex
	account models.RegistryAccount
}

func NewMemoryAccountStore(administrator id.Identity, registrationFee int64) *MemoryAccountStore {
	return &MemoryAccountStore{account: models.RegistryAccount{
		Administrator:   administrator,
		RegistrationFee: registrationFee,
	}}
}

func (s *MemoryAccountStore) Get(ctx context.Context) (models.RegistryAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account, nil
}

func (s *MemoryAccountStore) NextListingID(ctx context.Context) (id.ListingID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account.ListingCount++
	return id.ListingID(s.account.ListingCount), nil
}

func (s *MemoryAccountStore) AddRetained(ctx context.Context, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account.RetainedBalance += amount
	return nil
}

func (s *MemoryAccountStore) DrainRetained(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount := s.account.RetainedBalance
	s.account.RetainedBalance = 0
	return amount, nil
}
