// Package homeassistant provides the REST gateway client for Home Assistant.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vegardlu/homelab-core/internal/logging"
)

// statesTemplate renders one pipe-separated line per entity with the area
// and floor resolved inline, avoiding an N+1 lookup per entity. %s is the
// states collection, either "states" or "states.<domain>".
const statesTemplate = `{%% for state in %s -%%}
{{ state.entity_id }}|{{ state.name }}|{{ area_name(state.entity_id) }}|{{ area_id(state.entity_id) }}|{{ floor_name(state.entity_id) }}|{{ state.state }}
{%% endfor %%}`

// areasTemplate renders one area name per line.
const areasTemplate = `{% for id in areas() -%}
{{ area_name(id) }}
{% endfor %}`

// RESTClient is the HTTP implementation of Client.
type RESTClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logging.Logger
}

// RESTClientConfig configures the REST client.
type RESTClientConfig struct {
	// Timeout for HTTP requests (default: 30 seconds)
	Timeout time.Duration
}

// DefaultRESTClientConfig returns the default REST client configuration.
func DefaultRESTClientConfig() RESTClientConfig {
	return RESTClientConfig{
		Timeout: 30 * time.Second,
	}
}

// NewRESTClient creates a new REST client with default configuration.
func NewRESTClient(baseURL, token string, logger *logging.Logger) *RESTClient {
	return NewRESTClientWithConfig(baseURL, token, logger, DefaultRESTClientConfig())
}

// NewRESTClientWithConfig creates a new REST client with custom configuration.
func NewRESTClientWithConfig(baseURL, token string, logger *logging.Logger, config RESTClientConfig) *RESTClient {
	// Normalize base URL - remove trailing slash and ensure no /api suffix
	baseURL = strings.TrimSuffix(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/api")

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.New(logging.LevelInfo)
	}

	return &RESTClient{
		baseURL: baseURL,
		token:   token,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetStates fetches all raw entity states from GET /api/states.
// Returns an empty slice on any failure.
func (c *RESTClient) GetStates(ctx context.Context) []EntityState {
	body, err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/api/states", nil)
	if err != nil {
		c.logger.Error("Failed to fetch states", "error", err)
		return nil
	}

	var states []EntityState
	if err := json.Unmarshal(body, &states); err != nil {
		c.logger.Error("Failed to parse states response", "error", err)
		return nil
	}

	c.logger.Debug("Fetched states", "count", len(states))
	return states
}

// GetAreas fetches all area names via a server-side template.
// Returns an empty slice on any failure.
func (c *RESTClient) GetAreas(ctx context.Context) []string {
	rendered, err := c.RenderTemplate(ctx, areasTemplate)
	if err != nil {
		c.logger.Error("Failed to fetch areas", "error", err)
		return nil
	}

	var areas []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(rendered, "\n") {
		name := normalizeTemplateValue(strings.TrimSpace(line))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		areas = append(areas, name)
	}
	return areas
}

// GetEnhancedEntities fetches all entity states with area and floor resolved
// in a single template query. See Client for the fallback contract.
func (c *RESTClient) GetEnhancedEntities(ctx context.Context, domain, area string) []EnhancedEntityState {
	// Raw states supply the attribute maps; the template supplies area/floor.
	raw := c.GetStates(ctx)
	byID := make(map[string]EntityState, len(raw))
	for _, s := range raw {
		byID[s.EntityID] = s
	}

	collection := "states"
	if domain != "" {
		collection = "states." + domain
	}

	rendered, err := c.RenderTemplate(ctx, fmt.Sprintf(statesTemplate, collection))
	if err != nil || strings.TrimSpace(rendered) == "" {
		if err != nil {
			c.logger.Warn("Template query failed, falling back to raw states", "error", err)
		}
		return fallbackEntities(raw, domain)
	}

	entities := c.parseEntityLines(rendered, byID)
	if len(entities) == 0 {
		return fallbackEntities(raw, domain)
	}

	if area != "" {
		want := NormalizeArea(area)
		filtered := entities[:0]
		for _, e := range entities {
			if (e.Area != "" && NormalizeArea(e.Area) == want) ||
				(e.AreaID != "" && NormalizeArea(e.AreaID) == want) {
				filtered = append(filtered, e)
			}
		}
		entities = filtered
	}
	return entities
}

// parseEntityLines parses the pipe-separated template output. Malformed
// lines are logged and skipped rather than failing the whole batch.
func (c *RESTClient) parseEntityLines(rendered string, byID map[string]EntityState) []EnhancedEntityState {
	var entities []EnhancedEntityState
	for _, line := range strings.Split(rendered, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 6 {
			c.logger.Warn("Skipping malformed template line", "line", line)
			continue
		}

		id := strings.TrimSpace(parts[0])
		name := strings.TrimSpace(parts[1])
		if name == "" || name == "None" {
			name = id
		}

		e := EnhancedEntityState{
			EntityID:     id,
			FriendlyName: name,
			Area:         normalizeTemplateValue(strings.TrimSpace(parts[2])),
			AreaID:       normalizeTemplateValue(strings.TrimSpace(parts[3])),
			Floor:        normalizeTemplateValue(strings.TrimSpace(parts[4])),
			State:        strings.TrimSpace(parts[5]),
		}
		if raw, ok := byID[id]; ok {
			e.Attributes = raw.Attributes
		}
		entities = append(entities, e)
	}
	return entities
}

// fallbackEntities maps raw states into EnhancedEntityState with area and
// floor absent, reapplying the domain filter client-side.
func fallbackEntities(raw []EntityState, domain string) []EnhancedEntityState {
	var entities []EnhancedEntityState
	prefix := ""
	if domain != "" {
		prefix = domain + "."
	}
	for _, s := range raw {
		if prefix != "" && !strings.HasPrefix(s.EntityID, prefix) {
			continue
		}
		name := s.EntityID
		if v, ok := s.Attributes["friendly_name"].(string); ok && v != "" {
			name = v
		}
		entities = append(entities, EnhancedEntityState{
			EntityID:     s.EntityID,
			FriendlyName: name,
			State:        s.State,
			Attributes:   s.Attributes,
		})
	}
	return entities
}

// RenderTemplate renders a Jinja template via POST /api/template.
func (c *RESTClient) RenderTemplate(ctx context.Context, template string) (string, error) {
	payload, err := json.Marshal(map[string]string{"template": template})
	if err != nil {
		return "", fmt.Errorf("encoding template request: %w", err)
	}

	body, err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/template", payload)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// CallService invokes POST /api/services/{domain}/{service}. The payload is
// the data map merged with {entity_id}. Unlike the read paths, failures are
// returned to the caller: a command must not silently no-op.
func (c *RESTClient) CallService(ctx context.Context, domain, service, entityID string, data map[string]any) error {
	c.logger.Info("Calling service", "domain", domain, "service", service, "entity_id", entityID)

	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["entity_id"] = entityID

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding service payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, domain, service)
	if _, err := c.doJSON(ctx, http.MethodPost, url, encoded); err != nil {
		c.logger.Error("Service call failed", "domain", domain, "service", service, "entity_id", entityID, "error", err)
		return err
	}
	return nil
}

// noResponseBody is the default message when the server returns an empty body.
const noResponseBody = "no response body"

// doJSON executes a request with auth headers and returns the response body.
// Non-2xx statuses are converted to APIError.
func (c *RESTClient) doJSON(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() {
		// Drain and close the response body to enable connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	bodyStr := string(respBody)
	if bodyStr == "" {
		bodyStr = noResponseBody
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    "unauthorized: invalid or expired token",
		}
	case http.StatusNotFound:
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("not found: %s", url),
		}
	default:
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, bodyStr),
		}
	}
}

// NormalizeArea lowercases an area string, replaces underscores with spaces
// and trims surrounding whitespace, so "Living_Room", "living room" and
// "living_room" all compare equal.
func NormalizeArea(s string) string {
	return strings.TrimSpace(strings.ToLower(strings.ReplaceAll(s, "_", " ")))
}
