// Package homeassistant provides types for the Home Assistant REST API.
package homeassistant

// EntityState is a raw entity state as returned by GET /api/states.
type EntityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// EnhancedEntityState is an entity state enriched with area and floor
// information resolved server-side via the template API. Area and floor
// fields are empty when the entity has no area assignment; the literal
// template outputs "None" and "unknown" are normalized away during parsing.
type EnhancedEntityState struct {
	EntityID     string         `json:"entity_id"`
	FriendlyName string         `json:"friendly_name"`
	AreaID       string         `json:"area_id,omitempty"`
	Area         string         `json:"area,omitempty"`
	Floor        string         `json:"floor,omitempty"`
	State        string         `json:"state"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// StringAttr extracts a string attribute value. Returns an empty string if
// the key is missing or the value is not a string.
func (e EnhancedEntityState) StringAttr(key string) string {
	if v, ok := e.Attributes[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// IntAttr extracts a numeric attribute value as an int. The second return
// is false when the key is missing or not numeric.
func (e EnhancedEntityState) IntAttr(key string) (int, bool) {
	switch v := e.Attributes[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

// normalizeTemplateValue maps the textual nulls the template engine emits
// ("None" from Python, "unknown" from Home Assistant) to an empty string.
func normalizeTemplateValue(s string) string {
	if s == "None" || s == "unknown" {
		return ""
	}
	return s
}
