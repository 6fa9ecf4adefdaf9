package testutil

import (
	"context"

	"github.com/enem-redacao/essay-form/internal/analysis"
)

// MockUpstream answers health probes with fixed values.
type MockUpstream struct {
	HealthErr error
	Status    *analysis.ServicesStatus
	StatusErr error
}

// Health implements api.Upstream.
func (m *MockUpstream) Health(ctx context.Context) error {
	return m.HealthErr
}

// ServicesStatus implements api.Upstream.
func (m *MockUpstream) ServicesStatus(ctx context.Context) (*analysis.ServicesStatus, error) {
	if m.StatusErr != nil {
		return nil, m.StatusErr
	}
	return m.Status, nil
}
