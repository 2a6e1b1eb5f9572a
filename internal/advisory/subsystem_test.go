package advisory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"elx/engine/internal/breaker"
	"elx/engine/internal/entity"
	"elx/engine/internal/model"
	"elx/engine/pkg/config"
	"elx/engine/pkg/logger"
)

type mockModelClient struct {
	mock.Mock
}

func (m *mockModelClient) Complete(ctx context.Context, prompt string) (string, int64, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Get(1).(int64), args.Error(2)
}

type mockBudget struct {
	mock.Mock
}

func (m *mockBudget) Reserve(ctx context.Context, tenant string, now time.Time, tokens, limit int64) (bool, error) {
	args := m.Called(ctx, tenant, now, tokens, limit)
	return args.Bool(0), args.Error(1)
}

func testAIConfig() config.AIConfig {
	return config.AIConfig{
		Timeout:           time.Second,
		MinConfidence:     0.55,
		BlockConfidence:   0.3,
		DailyTokenLimit:   100000,
		EstimatedCallCost: 1500,
		SampleSeverities:  []string{entity.SeverityHigh, entity.SeverityCritical},
	}
}

func highSeverityException() *entity.ExceptionRecord {
	return &entity.ExceptionRecord{
		ID:         7,
		Tenant:     "t1",
		OrderID:    "o1",
		ReasonCode: entity.ReasonPickDelay,
		Severity:   entity.SeverityHigh,
	}
}

func newTestSubsystem(client ModelClient, budget BudgetStore) *Subsystem {
	brk := breaker.New("test", breaker.NewMemoryStore(), 5, time.Minute, time.Minute, nil, logger.NewNop())
	return NewSubsystem(testAIConfig(), client, brk, budget, logger.NewNop())
}

func TestAnalyzeSuccessfulModelCall(t *testing.T) {
	client := &mockModelClient{}
	client.On("Complete", mock.Anything, mock.AnythingOfType("string")).
		Return(`{"label":"pick_delay","confidence":0.9,"ops_note":"check","client_note":"delay","reasoning":"overdue"}`, int64(1200), nil)

	budget := &mockBudget{}
	budget.On("Reserve", mock.Anything, "t1", mock.Anything, int64(1500), int64(100000)).
		Return(true, nil)

	adv := newTestSubsystem(client, budget).Analyze(context.Background(), highSeverityException(), nil)

	require.Equal(t, model.AdvisorySourceAI, adv.Source)
	require.True(t, adv.AICallSucceeded)
	require.Equal(t, "PICK_DELAY", adv.Label)
	require.NotNil(t, adv.Confidence)
	require.InDelta(t, 0.9, *adv.Confidence, 1e-9)
	client.AssertExpectations(t)
	budget.AssertExpectations(t)
}

func TestAnalyzeLowSeveritySkipsModel(t *testing.T) {
	client := &mockModelClient{}
	budget := &mockBudget{}

	exc := highSeverityException()
	exc.Severity = entity.SeverityLow

	adv := newTestSubsystem(client, budget).Analyze(context.Background(), exc, nil)

	require.Equal(t, model.AdvisorySourceFallback, adv.Source)
	require.False(t, adv.AICallSucceeded)
	require.Nil(t, adv.Confidence)
	client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	budget.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyzeBudgetExhaustedFallsBack(t *testing.T) {
	client := &mockModelClient{}
	budget := &mockBudget{}
	budget.On("Reserve", mock.Anything, "t1", mock.Anything, int64(1500), int64(100000)).
		Return(false, nil)

	adv := newTestSubsystem(client, budget).Analyze(context.Background(), highSeverityException(), nil)

	require.Equal(t, model.AdvisorySourceFallback, adv.Source)
	require.Nil(t, adv.Confidence)
	client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestAnalyzeModelErrorFallsBack(t *testing.T) {
	client := &mockModelClient{}
	client.On("Complete", mock.Anything, mock.AnythingOfType("string")).
		Return("", int64(0), errors.New("connection refused"))

	budget := &mockBudget{}
	budget.On("Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(true, nil)

	adv := newTestSubsystem(client, budget).Analyze(context.Background(), highSeverityException(), nil)

	require.Equal(t, model.AdvisorySourceFallback, adv.Source)
	require.False(t, adv.AICallSucceeded)
	require.Nil(t, adv.Confidence)
}

func TestAnalyzeOpenCircuitFallsBack(t *testing.T) {
	client := &mockModelClient{}
	client.On("Complete", mock.Anything, mock.AnythingOfType("string")).
		Return("", int64(0), errors.New("timeout"))

	budget := &mockBudget{}
	budget.On("Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(true, nil)

	brk := breaker.New("test", breaker.NewMemoryStore(), 2, time.Hour, time.Hour, nil, logger.NewNop())
	sub := NewSubsystem(testAIConfig(), client, brk, budget, logger.NewNop())

	exc := highSeverityException()
	sub.Analyze(context.Background(), exc, nil)
	sub.Analyze(context.Background(), exc, nil)

	// 熔断已打开，第三次不再触达模型
	adv := sub.Analyze(context.Background(), exc, nil)
	require.Equal(t, model.AdvisorySourceFallback, adv.Source)
	client.AssertNumberOfCalls(t, "Complete", 2)
}

func TestAnalyzeUnparseableOutputFallsBack(t *testing.T) {
	client := &mockModelClient{}
	client.On("Complete", mock.Anything, mock.AnythingOfType("string")).
		Return("I am unable to help with that.", int64(800), nil)

	budget := &mockBudget{}
	budget.On("Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(true, nil)

	adv := newTestSubsystem(client, budget).Analyze(context.Background(), highSeverityException(), nil)

	require.Equal(t, model.AdvisorySourceFallback, adv.Source)
	require.Nil(t, adv.Confidence)
	require.False(t, adv.AICallSucceeded)
}

func TestAnalyzeLowConfidenceKeepsRawConfidence(t *testing.T) {
	client := &mockModelClient{}
	client.On("Complete", mock.Anything, mock.AnythingOfType("string")).
		Return(`{"label":"pick_delay","confidence":0.4}`, int64(900), nil)

	budget := &mockBudget{}
	budget.On("Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(true, nil)

	adv := newTestSubsystem(client, budget).Analyze(context.Background(), highSeverityException(), nil)

	// 内容换兜底，但模型给出的置信度原样保留，调用成功标记不丢
	require.Equal(t, model.AdvisorySourceFallback, adv.Source)
	require.True(t, adv.AICallSucceeded)
	require.NotNil(t, adv.Confidence)
	require.InDelta(t, 0.4, *adv.Confidence, 1e-9)
}

func TestFallbackUnknownReasonCode(t *testing.T) {
	adv := Fallback(&entity.ExceptionRecord{ReasonCode: "SOMETHING_NEW"})
	require.Equal(t, entity.ReasonOther, adv.Label)
	require.Equal(t, model.AdvisorySourceFallback, adv.Source)
	require.Nil(t, adv.Confidence)
	require.NotEmpty(t, adv.OpsNote)
	require.NotEmpty(t, adv.ClientNote)
}
