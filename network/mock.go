package network

import (
	"context"
	"net"
	"sync"
)

// check MockRadio compliance to its interface during compile time
var _ Radio = (*MockRadio)(nil)

// MockRadio is an in-memory radio. It records every call and lets each
// step be made to fail.
type MockRadio struct {
	mu sync.Mutex

	Networks  []*Wifi
	MockLease *Lease

	StartErr     error
	ScanErr      error
	ConfigureErr error
	ConnectErr   error
	LeaseErr     error

	// OnScan and OnConnect run at the start of the call, without the lock.
	OnScan    func()
	OnConnect func()

	calls          []string
	configurations []*ClientConfiguration
	active         *ClientConfiguration
	started        bool
	stops          int
}

func NewMockRadio(networks ...*Wifi) *MockRadio {
	return &MockRadio{
		Networks: networks,
		MockLease: &Lease{
			Address: net.IPv4(192, 168, 1, 42).To4(),
			Gateway: net.IPv4(192, 168, 1, 1).To4(),
			Mask:    net.CIDRMask(24, 32),
		},
	}
}

func (m *MockRadio) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *MockRadio) SetConfiguration(cfg *ClientConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg == nil {
		m.record("set-default-configuration")
		m.active = nil
		return nil
	}

	m.record("set-configuration")

	if m.ConfigureErr != nil {
		return m.ConfigureErr
	}

	copied := *cfg
	m.configurations = append(m.configurations, &copied)
	m.active = &copied

	return nil
}

func (m *MockRadio) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("start")

	if m.StartErr != nil {
		return m.StartErr
	}

	m.started = true

	return nil
}

func (m *MockRadio) Scan(ctx context.Context) ([]*Wifi, error) {
	if m.OnScan != nil {
		m.OnScan()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("scan")

	if m.ScanErr != nil {
		return nil, m.ScanErr
	}

	networks := make([]*Wifi, len(m.Networks))
	copy(networks, m.Networks)

	return networks, nil
}

func (m *MockRadio) Connect(ctx context.Context) error {
	if m.OnConnect != nil {
		m.OnConnect()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("connect")

	return m.ConnectErr
}

func (m *MockRadio) WaitLease(ctx context.Context) (*Lease, error) {
	m.mu.Lock()
	leaseErr := m.LeaseErr
	lease := m.MockLease
	m.record("wait-lease")
	m.mu.Unlock()

	if leaseErr != nil {
		return nil, leaseErr
	}

	if lease == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return lease, nil
}

func (m *MockRadio) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("stop")

	m.stops++
	m.started = false
	m.active = nil

	return nil
}

// Calls lists the names of all recorded calls in order.
func (m *MockRadio) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]string, len(m.calls))
	copy(calls, m.calls)

	return calls
}

// Configurations lists every non-default configuration that was applied.
func (m *MockRadio) Configurations() []*ClientConfiguration {
	m.mu.Lock()
	defer m.mu.Unlock()

	configurations := make([]*ClientConfiguration, len(m.configurations))
	copy(configurations, m.configurations)

	return configurations
}

// Active is the configuration currently applied, nil after Stop.
func (m *MockRadio) Active() *ClientConfiguration {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active
}

func (m *MockRadio) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.started
}

func (m *MockRadio) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stops
}
