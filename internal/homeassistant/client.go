// Package homeassistant provides the REST gateway client for Home Assistant.
package homeassistant

import (
	"context"
	"fmt"
)

// Client defines the gateway operations against the Home Assistant hub.
//
// Read operations (GetStates, GetAreas, GetEnhancedEntities) are best-effort:
// on any transport or parse failure they log and return an empty result so
// consumers can keep serving whatever snapshot they already hold. Write
// operations (CallService) propagate errors because a command must never
// fail silently.
type Client interface {
	// GetStates returns all raw entity states, or an empty slice on failure.
	GetStates(ctx context.Context) []EntityState

	// GetAreas returns all configured area names, or an empty slice on failure.
	GetAreas(ctx context.Context) []string

	// GetEnhancedEntities returns entity states with area and floor resolved
	// in a single server-side template query. domain and area are optional
	// filters (empty string matches everything). When the template path
	// fails it falls back to GetStates with area/floor left absent; the
	// domain filter is reapplied client-side but area filtering is not
	// recoverable in fallback mode since the raw state payload carries no
	// area data.
	GetEnhancedEntities(ctx context.Context, domain, area string) []EnhancedEntityState

	// RenderTemplate renders a Jinja template server-side via POST /api/template.
	RenderTemplate(ctx context.Context, template string) (string, error)

	// CallService invokes POST /api/services/{domain}/{service} with the
	// payload merged with {entity_id}.
	CallService(ctx context.Context, domain, service, entityID string, data map[string]any) error
}

// APIError represents an error response from the Home Assistant API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Home Assistant API error (status %d): %s", e.StatusCode, e.Message)
}
