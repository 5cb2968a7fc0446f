// Package testutil provides mocks shared by the pipeline tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/GriffinCanCode/spectra/internal/queue"
	"github.com/stretchr/testify/mock"
)

// MockWorker is a mock implementation of stage.Worker.
type MockWorker struct {
	mock.Mock
}

// Init mocks the Init method.
func (m *MockWorker) Init(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Step mocks the Step method.
func (m *MockWorker) Step() error {
	args := m.Called()
	return args.Error(0)
}

// Close mocks the Close method.
func (m *MockWorker) Close() error {
	args := m.Called()
	return args.Error(0)
}

// NewMockWorker creates a worker whose Init and Close succeed and whose Step
// idles for one millisecond per call.
func NewMockWorker(t *testing.T) *MockWorker {
	t.Helper()
	m := new(MockWorker)
	m.On("Init", mock.Anything).Return(nil).Maybe()
	m.On("Step").Run(func(mock.Arguments) { time.Sleep(time.Millisecond) }).Return(nil).Maybe()
	m.On("Close").Return(nil).Maybe()
	return m
}

// MockStatsReporter is a mock implementation of queue.StatsReporter.
type MockStatsReporter struct {
	mock.Mock
}

// Name mocks the Name method.
func (m *MockStatsReporter) Name() string {
	args := m.Called()
	return args.String(0)
}

// TakeStats mocks the TakeStats method.
func (m *MockStatsReporter) TakeStats() queue.Stats {
	args := m.Called()
	return args.Get(0).(queue.Stats)
}
