package sla

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"elx/engine/internal/entity"
	"elx/engine/pkg/logger"
)

func TestInspectProblemEventCreatesException(t *testing.T) {
	creator := &mockCreator{}
	var got *entity.ExceptionRecord
	creator.On("CreateIfNoOpen", mock.Anything, mock.AnythingOfType("*entity.ExceptionRecord")).
		Return(true, nil).Run(func(args mock.Arguments) {
		got = args.Get(1).(*entity.ExceptionRecord)
	})

	detector := NewProblemDetector(creator, logger.NewNop())

	rec, err := detector.Inspect(context.Background(), &entity.OrderEvent{
		Tenant:    "t1",
		OrderID:   "o1",
		EventType: "delivery_failed",
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, entity.ReasonCarrierIssue, got.ReasonCode)
	require.Equal(t, entity.SeverityCritical, got.Severity)
}

func TestInspectRegularEventIsIgnored(t *testing.T) {
	creator := &mockCreator{}
	detector := NewProblemDetector(creator, logger.NewNop())

	rec, err := detector.Inspect(context.Background(), &entity.OrderEvent{
		Tenant:    "t1",
		OrderID:   "o1",
		EventType: "order_paid",
	})
	require.NoError(t, err)
	require.Nil(t, rec)
	creator.AssertNotCalled(t, "CreateIfNoOpen", mock.Anything, mock.Anything)
}

func TestInspectDuplicateOpenExceptionReturnsNil(t *testing.T) {
	creator := &mockCreator{}
	creator.On("CreateIfNoOpen", mock.Anything, mock.AnythingOfType("*entity.ExceptionRecord")).
		Return(false, nil)

	detector := NewProblemDetector(creator, logger.NewNop())

	rec, err := detector.Inspect(context.Background(), &entity.OrderEvent{
		Tenant:    "t1",
		OrderID:   "o1",
		EventType: "address_invalid",
	})
	require.NoError(t, err)
	require.Nil(t, rec)
}
