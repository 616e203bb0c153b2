package eventbus_test

import (
	"errors"
	"testing"

	"github.com/dukex/ruleflow/pkg/eventbus"
	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/mocks"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExecutionPublisher_PublishExecution(t *testing.T) {
	record := &models.ExecutionRecord{ID: "exec-1", WorkflowID: "wf-1", Status: models.ExecutionStatusPartial}

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "wf-1", mock.MatchedBy(func(event eventbus.Event) bool {
		completed, ok := event.(*events.ExecutionCompleted)

		return ok && completed.Record == record
	})).Return(nil).Once()

	require.NoError(t, eventbus.NewExecutionPublisher(bus).PublishExecution(t.Context(), record))
	bus.AssertExpectations(t)
}

func TestExecutionPublisher_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    models.ExecutionStatus
		publishes bool
		busErr    error
	}{
		{name: "in-flight record is refused", status: models.ExecutionStatusDispatchingActions},
		{name: "bus failure is returned", status: models.ExecutionStatusFailure, publishes: true, busErr: errors.New("broker down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &mocks.MockEventBus{}
			if tt.publishes {
				bus.On("Publish", mock.Anything, "wf-1", mock.Anything).Return(tt.busErr)
			}

			err := eventbus.NewExecutionPublisher(bus).PublishExecution(t.Context(),
				&models.ExecutionRecord{ID: "exec-1", WorkflowID: "wf-1", Status: tt.status})
			require.Error(t, err)

			if tt.busErr != nil {
				assert.ErrorIs(t, err, tt.busErr)
			}

			bus.AssertExpectations(t)
		})
	}
}
