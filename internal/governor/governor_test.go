package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"elx/engine/internal/entity"
	"elx/engine/internal/model"
	"elx/engine/pkg/logger"
)

type mockExceptionStore struct {
	mock.Mock
}

func (m *mockExceptionStore) IncrementAttempt(ctx context.Context, id int64, now time.Time) (*entity.ExceptionRecord, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ExceptionRecord), args.Error(1)
}

func (m *mockExceptionStore) Resolve(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockExceptionStore) Block(ctx context.Context, id int64, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *mockExceptionStore) ResetResolutionTracking(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func openException() *entity.ExceptionRecord {
	marker := "1"
	return &entity.ExceptionRecord{
		ID:                    11,
		Tenant:                "t1",
		OrderID:               "o1",
		ReasonCode:            entity.ReasonCarrierIssue,
		Status:                entity.ExceptionStatusOpen,
		Severity:              entity.SeverityHigh,
		OpenUniq:              &marker,
		MaxResolutionAttempts: 2,
	}
}

func TestIsEligible(t *testing.T) {
	gov := NewGovernor(&mockExceptionStore{}, logger.NewNop())

	exc := openException()
	require.True(t, gov.IsEligible(exc))

	blocked := openException()
	blocked.ResolutionBlocked = true
	require.False(t, gov.IsEligible(blocked))

	exhausted := openException()
	exhausted.ResolutionAttempts = 2
	require.False(t, gov.IsEligible(exhausted))

	resolved := openException()
	resolved.Status = entity.ExceptionStatusResolved
	resolved.OpenUniq = nil
	require.False(t, gov.IsEligible(resolved))

	require.False(t, gov.IsEligible(nil))
}

func TestRecordAttemptSuccessResolves(t *testing.T) {
	store := &mockExceptionStore{}
	updated := openException()
	updated.ResolutionAttempts = 1
	updated.Status = entity.ExceptionStatusInProgress
	store.On("IncrementAttempt", mock.Anything, int64(11), mock.AnythingOfType("time.Time")).
		Return(updated, nil)
	store.On("Resolve", mock.Anything, int64(11)).Return(nil)

	gov := NewGovernor(store, logger.NewNop())
	got, err := gov.RecordAttempt(context.Background(), openException(), OutcomeSucceeded)
	require.NoError(t, err)
	require.Equal(t, entity.ExceptionStatusResolved, got.Status)
	store.AssertExpectations(t)
}

func TestRecordAttemptFailureBelowLimitStaysOpen(t *testing.T) {
	store := &mockExceptionStore{}
	updated := openException()
	updated.ResolutionAttempts = 1
	updated.Status = entity.ExceptionStatusInProgress
	store.On("IncrementAttempt", mock.Anything, int64(11), mock.AnythingOfType("time.Time")).
		Return(updated, nil)

	gov := NewGovernor(store, logger.NewNop())
	got, err := gov.RecordAttempt(context.Background(), openException(), OutcomeFailed)
	require.NoError(t, err)
	require.False(t, got.ResolutionBlocked)
	store.AssertNotCalled(t, "Block", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordAttemptFailureAtLimitBlocks(t *testing.T) {
	store := &mockExceptionStore{}
	updated := openException()
	updated.ResolutionAttempts = 2
	updated.Status = entity.ExceptionStatusInProgress
	store.On("IncrementAttempt", mock.Anything, int64(11), mock.AnythingOfType("time.Time")).
		Return(updated, nil)
	store.On("Block", mock.Anything, int64(11), "Maximum resolution attempts (2) reached").
		Return(nil)

	gov := NewGovernor(store, logger.NewNop())
	got, err := gov.RecordAttempt(context.Background(), openException(), OutcomeFailed)
	require.NoError(t, err)
	require.True(t, got.ResolutionBlocked)
	require.Equal(t, entity.ExceptionStatusBlocked, got.Status)
	require.NotNil(t, got.ResolutionBlockReason)
	require.Equal(t, "Maximum resolution attempts (2) reached", *got.ResolutionBlockReason)
	store.AssertExpectations(t)
}

func TestRecordAttemptRejectedWhenNoLongerEligible(t *testing.T) {
	store := &mockExceptionStore{}
	// 条件更新未命中：并发触发器已抢先用尽名额
	store.On("IncrementAttempt", mock.Anything, int64(11), mock.AnythingOfType("time.Time")).
		Return(nil, nil)

	gov := NewGovernor(store, logger.NewNop())
	got, err := gov.RecordAttempt(context.Background(), openException(), OutcomeFailed)
	require.NoError(t, err)
	require.Nil(t, got)
	store.AssertNotCalled(t, "Block", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestApplyAdvisoryGateBlocksLowConfidence(t *testing.T) {
	store := &mockExceptionStore{}
	store.On("Block", mock.Anything, int64(11), blockReasonLowConfidence).Return(nil)

	gov := NewGovernor(store, logger.NewNop())
	conf := 0.2
	exc := openException()
	blocked, err := gov.ApplyAdvisoryGate(context.Background(), exc, &model.Advisory{
		Confidence:      &conf,
		Source:          model.AdvisorySourceAI,
		AICallSucceeded: true,
	}, 0.3)
	require.NoError(t, err)
	require.True(t, blocked)
	require.True(t, exc.ResolutionBlocked)
	store.AssertExpectations(t)
}

func TestApplyAdvisoryGateIgnoresFallbackResults(t *testing.T) {
	store := &mockExceptionStore{}
	gov := NewGovernor(store, logger.NewNop())

	// 兜底结果没有模型置信度，不参与阻断判定
	blocked, err := gov.ApplyAdvisoryGate(context.Background(), openException(), &model.Advisory{
		Confidence: nil,
		Source:     model.AdvisorySourceFallback,
	}, 0.3)
	require.NoError(t, err)
	require.False(t, blocked)

	// 调用成功但置信度在下限之上，同样放行
	conf := 0.4
	blocked, err = gov.ApplyAdvisoryGate(context.Background(), openException(), &model.Advisory{
		Confidence:      &conf,
		Source:          model.AdvisorySourceAI,
		AICallSucceeded: true,
	}, 0.3)
	require.NoError(t, err)
	require.False(t, blocked)
	store.AssertNotCalled(t, "Block", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetDelegatesToStore(t *testing.T) {
	store := &mockExceptionStore{}
	store.On("ResetResolutionTracking", mock.Anything, int64(42)).Return(nil)

	gov := NewGovernor(store, logger.NewNop())
	require.NoError(t, gov.Reset(context.Background(), 42))
	store.AssertExpectations(t)
}

func TestPolicyCreatorStampsAttemptBudget(t *testing.T) {
	inner := &mockCreatorStore{}
	inner.On("CreateIfNoOpen", mock.Anything, mock.AnythingOfType("*entity.ExceptionRecord")).
		Return(true, nil)

	creator := NewPolicyCreator(inner, 3)
	rec := &entity.ExceptionRecord{Tenant: "t1", OrderID: "o1", ReasonCode: entity.ReasonOther}
	ok, err := creator.CreateIfNoOpen(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, rec.MaxResolutionAttempts)

	// 已有预算的记录不覆盖
	rec2 := &entity.ExceptionRecord{MaxResolutionAttempts: 1}
	_, err = creator.CreateIfNoOpen(context.Background(), rec2)
	require.NoError(t, err)
	require.Equal(t, 1, rec2.MaxResolutionAttempts)
}

type mockCreatorStore struct {
	mock.Mock
}

func (m *mockCreatorStore) CreateIfNoOpen(ctx context.Context, rec *entity.ExceptionRecord) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}
