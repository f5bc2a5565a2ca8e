package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vegardlu/homelab-core/internal/cache"
	"github.com/vegardlu/homelab-core/internal/homeassistant"
	"github.com/vegardlu/homelab-core/internal/logging"
)

// fakeClient records service calls; reads come from the cache in these tests.
type fakeClient struct {
	entities []homeassistant.EnhancedEntityState
	areas    []string
	calls    []serviceCall
	callErr  error
}

type serviceCall struct {
	domain   string
	service  string
	entityID string
	data     map[string]any
}

func (f *fakeClient) GetStates(ctx context.Context) []homeassistant.EntityState { return nil }

func (f *fakeClient) GetAreas(ctx context.Context) []string { return f.areas }

func (f *fakeClient) GetEnhancedEntities(ctx context.Context, domain, area string) []homeassistant.EnhancedEntityState {
	return f.entities
}

func (f *fakeClient) RenderTemplate(ctx context.Context, template string) (string, error) {
	return "", nil
}

func (f *fakeClient) CallService(ctx context.Context, domain, service, entityID string, data map[string]any) error {
	f.calls = append(f.calls, serviceCall{domain: domain, service: service, entityID: entityID, data: data})
	return f.callErr
}

func fixtureEntities() []homeassistant.EnhancedEntityState {
	return []homeassistant.EnhancedEntityState{
		{
			EntityID: "light.kitchen", FriendlyName: "Kitchen Light",
			AreaID: "kitchen", Area: "Kitchen", Floor: "Ground Floor", State: "on",
			Attributes: map[string]any{"brightness": float64(200)},
		},
		{
			EntityID: "sensor.outdoor_temp", FriendlyName: "Outdoor Temperature",
			State:      "12.5",
			Attributes: map[string]any{"device_class": "temperature", "unit_of_measurement": "°C"},
		},
	}
}

func newTestRegistry(t *testing.T, client *fakeClient) (*Registry, *fakeClient) {
	t.Helper()
	c := cache.New(client, logging.New(logging.LevelError), 0)
	c.Refresh(context.Background())

	r := NewRegistry()
	NewHATools(c, client).Register(r)
	return r, client
}

func TestRegisterAllTools(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeClient{})

	want := []string{"call_service", "get_state", "list_areas", "list_entities", "search_entities"}
	list := r.List()
	if len(list) != len(want) {
		t.Fatalf("registered %d tools, want %d", len(list), len(want))
	}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("tool %d = %s, want %s", i, list[i].Name, name)
		}
	}
}

func TestListAreas(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeClient{areas: []string{"Kitchen", "Living Room"}})

	got := r.Execute(context.Background(), "list_areas", nil)
	if got != "Kitchen\nLiving Room" {
		t.Errorf("list_areas = %q", got)
	}
}

func TestListEntities(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeClient{entities: fixtureEntities()})

	got := r.Execute(context.Background(), "list_entities", map[string]any{"domain": "light"})

	want := "light.kitchen|Kitchen Light|Kitchen|Ground Floor|on||"
	if got != want {
		t.Errorf("list_entities = %q, want %q", got, want)
	}
}

func TestListEntitiesAbsentAreaRendersNone(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeClient{entities: fixtureEntities()})

	got := r.Execute(context.Background(), "list_entities", map[string]any{"domain": "sensor"})

	want := "sensor.outdoor_temp|Outdoor Temperature|None|None|12.5|temperature|°C"
	if got != want {
		t.Errorf("list_entities = %q, want %q", got, want)
	}
}

func TestListEntitiesFallbackOnEmptyFilterResult(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeClient{entities: fixtureEntities()})

	got := r.Execute(context.Background(), "list_entities", map[string]any{
		"domain": "light",
		"area":   "Attic",
	})

	if !strings.Contains(got, "COMPLETE list of entities") {
		t.Errorf("fallback marker missing from: %q", got)
	}
	// The complete list must contain every entity id.
	for _, id := range []string{"light.kitchen", "sensor.outdoor_temp"} {
		if !strings.Contains(got, id) {
			t.Errorf("fallback list missing %s", id)
		}
	}
}

func TestListEntitiesNoFilterEmptyCache(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeClient{})

	got := r.Execute(context.Background(), "list_entities", nil)
	if got != "" {
		t.Errorf("list_entities on empty cache = %q, want empty", got)
	}
	if strings.Contains(got, "COMPLETE") {
		t.Errorf("unfiltered query must not trigger fallback")
	}
}

func TestGetState(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeClient{entities: fixtureEntities()})

	got := r.Execute(context.Background(), "get_state", map[string]any{"entity_id": "light.kitchen"})

	var parsed struct {
		State      string         `json:"state"`
		Attributes map[string]any `json:"attributes"`
	}
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("get_state returned invalid JSON: %v\n%s", err, got)
	}
	if parsed.State != "on" {
		t.Errorf("state = %q, want on", parsed.State)
	}
	if parsed.Attributes["brightness"] != float64(200) {
		t.Errorf("brightness = %v, want 200", parsed.Attributes["brightness"])
	}
}

func TestGetStateMissingArgs(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeClient{entities: fixtureEntities()})

	if got := r.Execute(context.Background(), "get_state", nil); got != "Error: entity_id is required" {
		t.Errorf("get_state without args = %q", got)
	}
	if got := r.Execute(context.Background(), "get_state", map[string]any{"entity_id": "light.nope"}); got != "Entity not found" {
		t.Errorf("get_state for unknown = %q", got)
	}
}

func TestCallService(t *testing.T) {
	r, client := newTestRegistry(t, &fakeClient{})

	got := r.Execute(context.Background(), "call_service", map[string]any{
		"domain":       "light",
		"service":      "turn_on",
		"entity_id":    "light.kitchen",
		"payload_json": `{"brightness": 255}`,
	})

	if got != "Service light.turn_on called for light.kitchen" {
		t.Errorf("call_service = %q", got)
	}

	want := []serviceCall{{
		domain: "light", service: "turn_on", entityID: "light.kitchen",
		data: map[string]any{"brightness": float64(255)},
	}}
	if diff := cmp.Diff(want, client.calls, cmp.AllowUnexported(serviceCall{})); diff != "" {
		t.Errorf("service calls mismatch (-want +got):\n%s", diff)
	}
}

func TestCallServiceMalformedPayloadDoesNotRaise(t *testing.T) {
	r, client := newTestRegistry(t, &fakeClient{})

	got := r.Execute(context.Background(), "call_service", map[string]any{
		"domain":       "light",
		"service":      "turn_on",
		"entity_id":    "light.kitchen",
		"payload_json": `{not json`,
	})

	if got != "Service light.turn_on called for light.kitchen" {
		t.Errorf("call_service with malformed payload = %q", got)
	}
	if len(client.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(client.calls))
	}
	if len(client.calls[0].data) != 0 {
		t.Errorf("payload = %v, want empty map", client.calls[0].data)
	}
}

func TestCallServiceMissingArgs(t *testing.T) {
	r, client := newTestRegistry(t, &fakeClient{})

	got := r.Execute(context.Background(), "call_service", map[string]any{"domain": "light"})
	if !strings.HasPrefix(got, "Error executing tool call_service:") {
		t.Errorf("call_service with missing args = %q", got)
	}
	if len(client.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(client.calls))
	}
}

func TestCallServiceGatewayErrorSurfaces(t *testing.T) {
	r, client := newTestRegistry(t, &fakeClient{})
	client.callErr = &homeassistant.APIError{StatusCode: 401, Message: "unauthorized"}

	got := r.Execute(context.Background(), "call_service", map[string]any{
		"domain":    "light",
		"service":   "turn_on",
		"entity_id": "light.kitchen",
	})

	if !strings.HasPrefix(got, "Error executing tool call_service:") {
		t.Errorf("call_service = %q, want error text", got)
	}
	if !strings.Contains(got, "401") {
		t.Errorf("error text should carry the status: %q", got)
	}
}

func TestSearchEntities(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeClient{entities: fixtureEntities()})

	got := r.Execute(context.Background(), "search_entities", map[string]any{"query": "kjøkken lys"})

	if !strings.Contains(got, "light.kitchen") {
		t.Errorf("search_entities(kjøkken lys) = %q, want hit on light.kitchen", got)
	}
}

func TestSearchEntitiesNoMatch(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeClient{entities: fixtureEntities()})

	if got := r.Execute(context.Background(), "search_entities", map[string]any{"query": "garage"}); got != "No matching entities" {
		t.Errorf("search_entities(garage) = %q", got)
	}
}

func TestSearchEntitiesMissingQuery(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeClient{})

	if got := r.Execute(context.Background(), "search_entities", nil); got != "Error: query is required" {
		t.Errorf("search_entities without query = %q", got)
	}
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]any
	}{
		{name: "empty", in: "", want: map[string]any{}},
		{name: "whitespace", in: "   ", want: map[string]any{}},
		{name: "malformed", in: "{not json", want: map[string]any{}},
		{name: "valid", in: `{"brightness": 255}`, want: map[string]any{"brightness": float64(255)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parsePayload(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parsePayload(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}
