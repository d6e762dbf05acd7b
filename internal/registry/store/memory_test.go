package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dplay/internal/registry/models"
	id "dplay/pkg/domain"
	"dplay/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	ctx context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) newListing(listingID id.ListingID, name string) *models.Listing {
	return &models.Listing{
		ID:        listingID,
		Name:      name,
		Category:  "games",
		Price:     100,
		Publisher: "user:pub",
		CreatedAt: time.Now().UTC(),
	}
}

func (s *MemoryStoreSuite) TestListingCRUD() {
	store := NewMemoryListingStore()

	s.Run("creates and finds by id", func() {
		s.Require().NoError(store.Create(s.ctx, s.newListing(1, "alpha")))

		found, err := store.FindByID(s.ctx, 1)
		s.Require().NoError(err)
		s.Equal("alpha", found.Name)
	})

	s.Run("rejects duplicate id", func() {
		err := store.Create(s.ctx, s.newListing(1, "clone"))
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("unknown id returns ErrNotFound", func() {
		_, err := store.FindByID(s.ctx, 42)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("reads return copies", func() {
		found, err := store.FindByID(s.ctx, 1)
		s.Require().NoError(err)
		found.Name = "mutated"

		again, err := store.FindByID(s.ctx, 1)
		s.Require().NoError(err)
		s.Equal("alpha", again.Name)
	})
}

func (s *MemoryStoreSuite) TestListingList() {
	store := NewMemoryListingStore()
	s.Require().NoError(store.Create(s.ctx, s.newListing(2, "beta")))
	s.Require().NoError(store.Create(s.ctx, s.newListing(1, "alpha")))
	tools := s.newListing(3, "gamma")
	tools.Category = "tools"
	s.Require().NoError(store.Create(s.ctx, tools))

	s.Run("returns id order regardless of insert order", func() {
		listings, err := store.List(s.ctx, "")
		s.Require().NoError(err)
		s.Require().Len(listings, 3)
		s.Equal(id.ListingID(1), listings[0].ID)
		s.Equal(id.ListingID(3), listings[2].ID)
	})

	s.Run("filters by category", func() {
		listings, err := store.List(s.ctx, "tools")
		s.Require().NoError(err)
		s.Require().Len(listings, 1)
		s.Equal("gamma", listings[0].Name)
	})
}

func (s *MemoryStoreSuite) TestListingExecute() {
	store := NewMemoryListingStore()
	s.Require().NoError(store.Create(s.ctx, s.newListing(1, "alpha")))

	s.Run("applies mutation under the store lock", func() {
		updated, err := store.Execute(s.ctx, 1, nil, func(l *models.Listing) {
			l.ApplyInstall(time.Now())
		})
		s.Require().NoError(err)
		s.Equal(int64(1), updated.Downloads)
	})

	s.Run("validate failure leaves the listing untouched", func() {
		_, err := store.Execute(s.ctx, 1,
			func(*models.Listing) error { return sentinel.ErrInvalidState },
			func(l *models.Listing) { l.Downloads = 999 })
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)

		found, err := store.FindByID(s.ctx, 1)
		s.Require().NoError(err)
		s.Equal(int64(1), found.Downloads)
	})

	s.Run("unknown id returns ErrNotFound", func() {
		_, err := store.Execute(s.ctx, 42, nil, func(*models.Listing) {})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("concurrent executes lose no increments", func() {
		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Execute(s.ctx, 1, nil, func(l *models.Listing) {
					l.ApplyRating(5, time.Now())
				})
				s.NoError(err)
			}()
		}
		wg.Wait()

		found, err := store.FindByID(s.ctx, 1)
		s.Require().NoError(err)
		s.Equal(int64(n), found.RatingCount)
		s.Equal(int64(5*n), found.RatingSum)
	})
}

func (s *MemoryStoreSuite) TestInstallStore() {
	store := NewMemoryInstallStore()
	record := models.InstallRecord{ListingID: 1, Installer: "user:alice", InstalledAt: time.Now()}

	s.Run("creates then reports existence", func() {
		s.Require().NoError(store.Create(s.ctx, record))

		exists, err := store.Exists(s.ctx, 1, "user:alice")
		s.Require().NoError(err)
		s.True(exists)
	})

	s.Run("duplicate pair conflicts", func() {
		err := store.Create(s.ctx, record)
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("same listing different installer is distinct", func() {
		other := record
		other.Installer = "user:bob"
		s.Require().NoError(store.Create(s.ctx, other))
	})

	s.Run("only one concurrent create wins", func() {
		const n = 20
		contested := models.InstallRecord{ListingID: 7, Installer: "user:racer"}
		errs := make(chan error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- store.Create(s.ctx, contested)
			}()
		}
		wg.Wait()
		close(errs)

		var created int
		for err := range errs {
			if err == nil {
				created++
			} else {
				s.Require().ErrorIs(err, sentinel.ErrConflict)
			}
		}
		s.Equal(1, created)
	})
}

func (s *MemoryStoreSuite) TestAccountStore() {
	store := NewMemoryAccountStore("dplay:admin", 100)

	s.Run("exposes administrator and fee", func() {
		account, err := store.Get(s.ctx)
		s.Require().NoError(err)
		s.Equal(id.Identity("dplay:admin"), account.Administrator)
		s.Equal(int64(100), account.RegistrationFee)
	})

	s.Run("hands out sequential ids under contention", func() {
		const n = 30
		ids := make(chan id.ListingID, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				listingID, err := store.NextListingID(s.ctx)
				s.NoError(err)
				ids <- listingID
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[id.ListingID]bool)
		for listingID := range ids {
			s.False(seen[listingID])
			seen[listingID] = true
		}
		s.Len(seen, n)
	})

	s.Run("drain returns the balance exactly once", func() {
		s.Require().NoError(store.AddRetained(s.ctx, 300))

		amount, err := store.DrainRetained(s.ctx)
		s.Require().NoError(err)
		s.Equal(int64(300), amount)

		amount, err = store.DrainRetained(s.ctx)
		s.Require().NoError(err)
		s.Zero(amount)
	})
}
