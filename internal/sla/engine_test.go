package sla

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"elx/engine/internal/entity"
	"elx/engine/pkg/config"
	"elx/engine/pkg/logger"
)

type mockCreator struct {
	mock.Mock
}

func (m *mockCreator) CreateIfNoOpen(ctx context.Context, rec *entity.ExceptionRecord) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

func defaultStages(string) []config.SLAStage {
	return []config.SLAStage{
		{ReasonCode: entity.ReasonPickDelay, FromEvent: "order_paid", ToEvent: "pick_completed", Minutes: 120},
		{ReasonCode: entity.ReasonPackDelay, FromEvent: "pick_completed", ToEvent: "pack_completed", Minutes: 90},
	}
}

func defaultSeverity() config.SeverityConfig {
	return config.SeverityConfig{MediumBelow: 0.5, HighBelow: 1.5}
}

func eventAt(eventType string, at time.Time) entity.OrderEvent {
	return entity.OrderEvent{
		Tenant:     "t1",
		OrderID:    "o1",
		EventType:  eventType,
		OccurredAt: at,
	}
}

func TestEvaluateBreachCreatesException(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	creator := &mockCreator{}
	creator.On("CreateIfNoOpen", mock.Anything, mock.AnythingOfType("*entity.ExceptionRecord")).
		Return(true, nil)

	engine := NewEngine(defaultStages, defaultSeverity(), creator, logger.NewNop())
	engine.now = func() time.Time { return base.Add(150 * time.Minute) }

	created, err := engine.Evaluate(context.Background(), "t1", "o1",
		[]entity.OrderEvent{eventAt("order_paid", base)})
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.Equal(t, entity.ReasonPickDelay, created[0].ReasonCode)
	// 超出 30 分钟，超时比 0.25 < 0.5 → MEDIUM
	require.Equal(t, entity.SeverityMedium, created[0].Severity)
	require.Equal(t, entity.ExceptionStatusOpen, created[0].Status)
	creator.AssertExpectations(t)
}

func TestEvaluateExactlyAtWindowIsNotBreach(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	creator := &mockCreator{}
	engine := NewEngine(defaultStages, defaultSeverity(), creator, logger.NewNop())
	engine.now = func() time.Time { return base.Add(120 * time.Minute) }

	created, err := engine.Evaluate(context.Background(), "t1", "o1",
		[]entity.OrderEvent{eventAt("order_paid", base)})
	require.NoError(t, err)
	require.Empty(t, created)
	creator.AssertNotCalled(t, "CreateIfNoOpen", mock.Anything, mock.Anything)
}

func TestEvaluateMissingFromEventSkipsStage(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	creator := &mockCreator{}
	engine := NewEngine(defaultStages, defaultSeverity(), creator, logger.NewNop())
	engine.now = func() time.Time { return base.Add(72 * time.Hour) }

	// 只有 pack_completed，两个阶段的起点事件都缺失
	created, err := engine.Evaluate(context.Background(), "t1", "o1",
		[]entity.OrderEvent{eventAt("pack_completed", base)})
	require.NoError(t, err)
	require.Empty(t, created)
}

func TestEvaluateCompletedStageUsesActualElapsed(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	creator := &mockCreator{}
	engine := NewEngine(defaultStages, defaultSeverity(), creator, logger.NewNop())
	// 当前时刻远在阶段之后，但阶段本身按时完成
	engine.now = func() time.Time { return base.Add(48 * time.Hour) }

	created, err := engine.Evaluate(context.Background(), "t1", "o1", []entity.OrderEvent{
		eventAt("order_paid", base),
		eventAt("pick_completed", base.Add(60*time.Minute)),
		eventAt("pack_completed", base.Add(100*time.Minute)),
	})
	require.NoError(t, err)
	require.Empty(t, created)
}

func TestEvaluateSeverityEscalation(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		elapsed  time.Duration
		severity string
	}{
		{150 * time.Minute, entity.SeverityMedium},   // ratio 0.25
		{240 * time.Minute, entity.SeverityHigh},     // ratio 1.0
		{360 * time.Minute, entity.SeverityCritical}, // ratio 2.0
	}

	for _, tc := range cases {
		creator := &mockCreator{}
		var got *entity.ExceptionRecord
		creator.On("CreateIfNoOpen", mock.Anything, mock.AnythingOfType("*entity.ExceptionRecord")).
			Return(true, nil).Run(func(args mock.Arguments) {
			got = args.Get(1).(*entity.ExceptionRecord)
		})

		engine := NewEngine(defaultStages, defaultSeverity(), creator, logger.NewNop())
		engine.now = func() time.Time { return base.Add(tc.elapsed) }

		_, err := engine.Evaluate(context.Background(), "t1", "o1",
			[]entity.OrderEvent{eventAt("order_paid", base)})
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, tc.severity, got.Severity, "elapsed=%s", tc.elapsed)
	}
}

func TestEvaluateExistingOpenExceptionIgnored(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	creator := &mockCreator{}
	creator.On("CreateIfNoOpen", mock.Anything, mock.AnythingOfType("*entity.ExceptionRecord")).
		Return(false, nil)

	engine := NewEngine(defaultStages, defaultSeverity(), creator, logger.NewNop())
	engine.now = func() time.Time { return base.Add(200 * time.Minute) }

	created, err := engine.Evaluate(context.Background(), "t1", "o1",
		[]entity.OrderEvent{eventAt("order_paid", base)})
	require.NoError(t, err)
	require.Empty(t, created)
}

func TestEvaluateTenantOverrideStages(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	stagesFor := func(tenant string) []config.SLAStage {
		if tenant == "premium" {
			return []config.SLAStage{
				{ReasonCode: entity.ReasonPickDelay, FromEvent: "order_paid", ToEvent: "pick_completed", Minutes: 60},
			}
		}
		return defaultStages(tenant)
	}

	creator := &mockCreator{}
	creator.On("CreateIfNoOpen", mock.Anything, mock.AnythingOfType("*entity.ExceptionRecord")).
		Return(true, nil)

	engine := NewEngine(stagesFor, defaultSeverity(), creator, logger.NewNop())
	engine.now = func() time.Time { return base.Add(90 * time.Minute) }

	// 默认租户 120 分钟窗口内，premium 租户 60 分钟已超
	created, err := engine.Evaluate(context.Background(), "premium", "o1",
		[]entity.OrderEvent{eventAt("order_paid", base)})
	require.NoError(t, err)
	require.Len(t, created, 1)

	created, err = engine.Evaluate(context.Background(), "t1", "o1",
		[]entity.OrderEvent{eventAt("order_paid", base)})
	require.NoError(t, err)
	require.Empty(t, created)
}
