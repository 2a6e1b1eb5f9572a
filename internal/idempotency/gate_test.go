package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"elx/engine/pkg/errorutil"
	"elx/engine/pkg/logger"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockLocker) ReleaseLock(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type mockDedupStore struct {
	mock.Mock
}

func (m *mockDedupStore) PutDedupIfAbsent(ctx context.Context, tenant, source, externalEventID string) (bool, error) {
	args := m.Called(ctx, tenant, source, externalEventID)
	return args.Bool(0), args.Error(1)
}

const testKey = "elx:ingest:t1:warehouse:ev-1"

func TestAdmitFreshEventAccepted(t *testing.T) {
	locker := &mockLocker{}
	locker.On("AcquireLock", mock.Anything, testKey, mock.AnythingOfType("time.Duration")).
		Return(true, nil)

	store := &mockDedupStore{}
	store.On("PutDedupIfAbsent", mock.Anything, "t1", "warehouse", "ev-1").Return(true, nil)

	gate := NewGate(locker, store, 0, logger.NewNop())
	admission, err := gate.Admit(context.Background(), "t1", "warehouse", "ev-1")
	require.NoError(t, err)
	require.Equal(t, Accepted, admission)
	locker.AssertNotCalled(t, "ReleaseLock", mock.Anything, mock.Anything)
}

func TestAdmitLockHeldElsewhereIsDuplicate(t *testing.T) {
	locker := &mockLocker{}
	locker.On("AcquireLock", mock.Anything, testKey, mock.AnythingOfType("time.Duration")).
		Return(false, nil)

	store := &mockDedupStore{}

	gate := NewGate(locker, store, 0, logger.NewNop())
	admission, err := gate.Admit(context.Background(), "t1", "warehouse", "ev-1")
	require.NoError(t, err)
	require.Equal(t, Duplicate, admission)
	store.AssertNotCalled(t, "PutDedupIfAbsent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAdmitMarkerExistsReleasesLockAndDuplicates(t *testing.T) {
	locker := &mockLocker{}
	locker.On("AcquireLock", mock.Anything, testKey, mock.AnythingOfType("time.Duration")).
		Return(true, nil)
	locker.On("ReleaseLock", mock.Anything, testKey).Return(nil)

	store := &mockDedupStore{}
	store.On("PutDedupIfAbsent", mock.Anything, "t1", "warehouse", "ev-1").Return(false, nil)

	gate := NewGate(locker, store, 0, logger.NewNop())
	admission, err := gate.Admit(context.Background(), "t1", "warehouse", "ev-1")
	require.NoError(t, err)
	require.Equal(t, Duplicate, admission)
	locker.AssertExpectations(t)
}

func TestAdmitLockerErrorIsRetriable(t *testing.T) {
	locker := &mockLocker{}
	locker.On("AcquireLock", mock.Anything, testKey, mock.AnythingOfType("time.Duration")).
		Return(false, errors.New("redis down"))

	gate := NewGate(locker, &mockDedupStore{}, 0, logger.NewNop())
	_, err := gate.Admit(context.Background(), "t1", "warehouse", "ev-1")
	require.Error(t, err)
	require.True(t, errorutil.IsRetryable(err))
}

func TestAdmitMarkerWriteErrorReleasesLock(t *testing.T) {
	locker := &mockLocker{}
	locker.On("AcquireLock", mock.Anything, testKey, mock.AnythingOfType("time.Duration")).
		Return(true, nil)
	locker.On("ReleaseLock", mock.Anything, testKey).Return(nil)

	store := &mockDedupStore{}
	store.On("PutDedupIfAbsent", mock.Anything, "t1", "warehouse", "ev-1").
		Return(false, errors.New("db down"))

	gate := NewGate(locker, store, 0, logger.NewNop())
	_, err := gate.Admit(context.Background(), "t1", "warehouse", "ev-1")
	require.Error(t, err)
	require.True(t, errorutil.IsRetryable(err))
	locker.AssertExpectations(t)
}

func TestDoneReleasesLock(t *testing.T) {
	locker := &mockLocker{}
	locker.On("ReleaseLock", mock.Anything, testKey).Return(nil)

	gate := NewGate(locker, &mockDedupStore{}, 0, logger.NewNop())
	gate.Done(context.Background(), "t1", "warehouse", "ev-1")
	locker.AssertExpectations(t)
}
