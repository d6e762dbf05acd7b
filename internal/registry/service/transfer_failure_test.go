package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"dplay/internal/eventlog"
	"dplay/internal/payment/mocks"
	"dplay/internal/registry/store"
	id "dplay/pkg/domain"
	dErrors "dplay/pkg/domain-errors"
)

func newMockedService(t *testing.T) (*Service, *mocks.MockChannel, *eventlog.MemoryStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	channel := mocks.NewMockChannel(ctrl)
	events := eventlog.NewMemoryStore()
	svc := New(
		store.NewMemoryListingStore(),
		store.NewMemoryInstallStore(),
		store.NewMemoryAccountStore(testAdmin, testFee),
		events,
		channel,
		NewMemoryTx(),
	)
	return svc, channel, events
}

func TestRegisterListing_TransferRejected(t *testing.T) {
	ctx := context.Background()
	svc, channel, events := newMockedService(t)

	channel.EXPECT().
		Transfer(gomock.Any(), alice, DefaultTreasury, testFee).
		Return(errors.New("channel unavailable"))

	_, err := svc.RegisterListing(ctx, "doomed", "", "", 0, testFee, alice)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTransferFailed))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ListingCount, "aborted registration must leave no trace")
	assert.Empty(t, events.All())
}

func TestInstallListing_TransferRejected(t *testing.T) {
	ctx := context.Background()
	svc, channel, _ := newMockedService(t)

	channel.EXPECT().
		Transfer(gomock.Any(), alice, DefaultTreasury, testFee).
		Return(nil)
	listingID, err := svc.RegisterListing(ctx, "paid", "", "", 400, testFee, alice)
	require.NoError(t, err)

	channel.EXPECT().
		Transfer(gomock.Any(), bob, alice, int64(400)).
		Return(errors.New("channel unavailable"))

	err = svc.InstallListing(ctx, listingID, 400, bob)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTransferFailed))

	installed, err := svc.HasInstalled(ctx, bob, listingID)
	require.NoError(t, err)
	assert.False(t, installed, "aborted install must leave no record")

	listing, err := svc.GetListing(ctx, listingID)
	require.NoError(t, err)
	assert.Zero(t, listing.Downloads)
}

func TestInstallListing_FreeSkipsChannel(t *testing.T) {
	ctx := context.Background()
	svc, channel, _ := newMockedService(t)

	channel.EXPECT().
		Transfer(gomock.Any(), alice, DefaultTreasury, testFee).
		Return(nil)
	listingID, err := svc.RegisterListing(ctx, "free", "", "", 0, testFee, alice)
	require.NoError(t, err)

	// No Transfer expectation: a free install must never call the channel.
	require.NoError(t, svc.InstallListing(ctx, listingID, 0, bob))
}

func TestRegisterListing_CustomTreasury(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	channel := mocks.NewMockChannel(ctrl)
	svc := New(
		store.NewMemoryListingStore(),
		store.NewMemoryInstallStore(),
		store.NewMemoryAccountStore(testAdmin, testFee),
		eventlog.NewMemoryStore(),
		channel,
		NewMemoryTx(),
		WithTreasury("vault:fees"),
	)

	channel.EXPECT().
		Transfer(gomock.Any(), alice, id.Identity("vault:fees"), testFee).
		Return(nil)

	_, err := svc.RegisterListing(ctx, "custom", "", "", 0, testFee, alice)
	require.NoError(t, err)
}

func TestWithdrawBalance_TransferRejected(t *testing.T) {
	ctx := context.Background()
	svc, channel, _ := newMockedService(t)

	channel.EXPECT().
		Transfer(gomock.Any(), alice, DefaultTreasury, testFee).
		Return(nil)
	_, err := svc.RegisterListing(ctx, "funded", "", "", 0, testFee, alice)
	require.NoError(t, err)

	channel.EXPECT().
		Transfer(gomock.Any(), DefaultTreasury, testAdmin, testFee).
		Return(errors.New("channel unavailable"))

	_, err = svc.WithdrawBalance(ctx, testAdmin)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTransferFailed))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, testFee, stats.RetainedBalance, "failed withdrawal must keep the balance retained")
}
