package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vegardlu/homelab-core/internal/cache"
	"github.com/vegardlu/homelab-core/internal/homeassistant"
)

// fallbackNotice prefixes the complete entity list returned when a filtered
// list_entities query matches nothing. The caller is a language model; given
// the full list it can attempt its own fuzzy match instead of giving up.
const fallbackNotice = "No entities found with filter [domain=%s, area=%s]. Here is the COMPLETE list of entities. Please check this list to find what the user meant:\n"

// HATools provides the Home Assistant tool set backed by the entity cache
// for reads and the gateway client for writes.
type HATools struct {
	cache  *cache.Cache
	client homeassistant.Client
}

// NewHATools creates the Home Assistant tool set.
func NewHATools(c *cache.Cache, client homeassistant.Client) *HATools {
	return &HATools{cache: c, client: client}
}

// Register registers all Home Assistant tools with the registry.
func (h *HATools) Register(r *Registry) {
	r.Register(h.listAreasTool(), h.handleListAreas)
	r.Register(h.listEntitiesTool(), h.handleListEntities)
	r.Register(h.getStateTool(), h.handleGetState)
	r.Register(h.callServiceTool(), h.handleCallService)
	r.Register(h.searchEntitiesTool(), h.handleSearchEntities)
}

func (h *HATools) listAreasTool() Tool {
	return Tool{
		Name:        "list_areas",
		Description: "List all configured areas (rooms) in the home.",
		InputSchema: JSONSchema{
			Type:        "object",
			Description: "No parameters required",
			Properties:  map[string]JSONSchema{},
		},
	}
}

func (h *HATools) handleListAreas(_ context.Context, _ map[string]any) (string, error) {
	return strings.Join(h.cache.Areas(), "\n"), nil
}

func (h *HATools) listEntitiesTool() Tool {
	return Tool{
		Name:        "list_entities",
		Description: "List entities. If you filter by area/domain and nothing is found, I will return ALL entities so you can find it yourself.",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]JSONSchema{
				"domain": {
					Type:        "string",
					Description: "Optional domain filter (e.g. 'light', 'switch').",
				},
				"area": {
					Type:        "string",
					Description: "Optional area filter.",
				},
			},
		},
	}
}

func (h *HATools) handleListEntities(_ context.Context, args map[string]any) (string, error) {
	domain, _ := StringArg(args, "domain")
	area, _ := StringArg(args, "area")

	entities := h.cache.Filter(domain, area)
	if len(entities) == 0 && (domain != "" || area != "") {
		all := h.cache.Filter("", "")
		return fmt.Sprintf(fallbackNotice, domain, area) + formatEntityLines(all), nil
	}
	return formatEntityLines(entities), nil
}

// formatEntityLines renders entities as pipe-separated lines:
// entity_id|friendly_name|area|floor|state|device_class|unit.
// Absent area/floor render as the literal "None"; absent device_class and
// unit render as empty fields.
func formatEntityLines(entities []homeassistant.EnhancedEntityState) string {
	lines := make([]string, 0, len(entities))
	for _, e := range entities {
		lines = append(lines, formatEntityLine(e))
	}
	return strings.Join(lines, "\n")
}

func formatEntityLine(e homeassistant.EnhancedEntityState) string {
	area := e.Area
	if area == "" {
		area = "None"
	}
	floor := e.Floor
	if floor == "" {
		floor = "None"
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		e.EntityID, e.FriendlyName, area, floor, e.State,
		e.StringAttr("device_class"), e.StringAttr("unit_of_measurement"))
}

func (h *HATools) getStateTool() Tool {
	return Tool{
		Name:        "get_state",
		Description: "Get the current state and attributes of a specific entity.",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]JSONSchema{
				"entity_id": {
					Type:        "string",
					Description: "The entity ID (e.g., 'light.kitchen_lights').",
				},
			},
			Required: []string{"entity_id"},
		},
	}
}

func (h *HATools) handleGetState(_ context.Context, args map[string]any) (string, error) {
	entityID, ok := StringArg(args, "entity_id")
	if !ok {
		return "Error: entity_id is required", nil
	}

	e, found := h.cache.Get(entityID)
	if !found {
		return "Entity not found", nil
	}

	out, err := json.Marshal(map[string]any{
		"state":      e.State,
		"attributes": e.Attributes,
	})
	if err != nil {
		return "", fmt.Errorf("formatting state: %w", err)
	}
	return string(out), nil
}

func (h *HATools) callServiceTool() Tool {
	return Tool{
		Name:        "call_service",
		Description: "Call a service on a home assistant domain to control devices (e.g., turn light on/off).",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]JSONSchema{
				"domain": {
					Type:        "string",
					Description: "The domain (e.g., 'light').",
				},
				"service": {
					Type:        "string",
					Description: "The service to call (e.g., 'turn_on', 'turn_off').",
				},
				"entity_id": {
					Type:        "string",
					Description: "The entity ID to target.",
				},
				"payload_json": {
					Type:        "string",
					Description: "Optional JSON string for additional parameters like brightness, color, etc.",
				},
			},
			Required: []string{"domain", "service", "entity_id"},
		},
	}
}

func (h *HATools) handleCallService(ctx context.Context, args map[string]any) (string, error) {
	domain, ok := StringArg(args, "domain")
	if !ok {
		return "", errors.New("domain is required")
	}
	service, ok := StringArg(args, "service")
	if !ok {
		return "", errors.New("service is required")
	}
	entityID, ok := StringArg(args, "entity_id")
	if !ok {
		return "", errors.New("entity_id is required")
	}
	payloadJSON, _ := StringArg(args, "payload_json")

	payload := parsePayload(payloadJSON)
	if err := h.client.CallService(ctx, domain, service, entityID, payload); err != nil {
		return "", err
	}
	return fmt.Sprintf("Service %s.%s called for %s", domain, service, entityID), nil
}

// parsePayload parses the optional payload_json argument. Blank or
// malformed JSON silently becomes an empty payload rather than an error;
// a model that produced broken JSON still gets its command attempted.
func parsePayload(payloadJSON string) map[string]any {
	if strings.TrimSpace(payloadJSON) == "" {
		return map[string]any{}
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return map[string]any{}
	}
	return payload
}

func (h *HATools) searchEntitiesTool() Tool {
	return Tool{
		Name:        "search_entities",
		Description: "Fuzzy-search entities by free text. Understands Norwegian room and device words (e.g. 'stua', 'lys') and returns the best matches ranked.",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]JSONSchema{
				"query": {
					Type:        "string",
					Description: "Free-text search query.",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (h *HATools) handleSearchEntities(_ context.Context, args map[string]any) (string, error) {
	query, ok := StringArg(args, "query")
	if !ok {
		return "Error: query is required", nil
	}

	results := h.cache.Search(query)
	if len(results) == 0 {
		return "No matching entities", nil
	}

	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, formatEntityLine(r.Entity))
	}
	return strings.Join(lines, "\n"), nil
}
