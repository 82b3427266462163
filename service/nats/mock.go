package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu                sync.RWMutex
	tradeEvents       []*TradeEvent
	acquisitionEvents []*AcquisitionEvent
	publishTradeError error
	publishAcqError   error
	closed            bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		tradeEvents:       make([]*TradeEvent, 0),
		acquisitionEvents: make([]*AcquisitionEvent, 0),
	}
}

// PublishTrade records the event and returns any configured error.
func (m *MockPublisher) PublishTrade(ctx context.Context, event *TradeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishTradeError != nil {
		return m.publishTradeError
	}
	m.tradeEvents = append(m.tradeEvents, event)
	return nil
}

// PublishAcquisition records the event and returns any configured error.
func (m *MockPublisher) PublishAcquisition(ctx context.Context, event *AcquisitionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishAcqError != nil {
		return m.publishAcqError
	}
	m.acquisitionEvents = append(m.acquisitionEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetTradeEvents returns all published trade events (for testing).
func (m *MockPublisher) GetTradeEvents() []*TradeEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*TradeEvent, len(m.tradeEvents))
	copy(events, m.tradeEvents)
	return events
}

// GetAcquisitionEvents returns all published acquisition events (for testing).
func (m *MockPublisher) GetAcquisitionEvents() []*AcquisitionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*AcquisitionEvent, len(m.acquisitionEvents))
	copy(events, m.acquisitionEvents)
	return events
}

// SetPublishTradeError configures the mock to return an error on PublishTrade.
func (m *MockPublisher) SetPublishTradeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishTradeError = err
}

// SetPublishAcquisitionError configures the mock to return an error on PublishAcquisition.
func (m *MockPublisher) SetPublishAcquisitionError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishAcqError = err
}

// Reset clears all recorded events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tradeEvents = make([]*TradeEvent, 0)
	m.acquisitionEvents = make([]*AcquisitionEvent, 0)
	m.publishTradeError = nil
	m.publishAcqError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
