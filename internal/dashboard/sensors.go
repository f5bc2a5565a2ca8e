package dashboard

import (
	"regexp"
	"strings"

	"github.com/vegardlu/homelab-core/internal/homeassistant"
)

// SensorDto is a sensor reading as shown on the dashboard.
type SensorDto struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	State             string `json:"state"`
	UnitOfMeasurement string `json:"unitOfMeasurement,omitempty"`
	DeviceClass       string `json:"deviceClass,omitempty"`
	Area              string `json:"area,omitempty"`
	Floor             string `json:"floor,omitempty"`
}

// isoDatePattern matches states that are ISO dates or timestamps, which
// are diagnostics rather than readings worth showing.
var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// phoneNameMarkers flag companion-app sensors that flood the sensor domain.
var phoneNameMarkers = []string{"iPhone", "Phone", "Pixel"}

// Sensors returns cached sensor entities with diagnostic noise filtered out.
func (s *Service) Sensors() []SensorDto {
	entities := s.cache.Filter("sensor", "")
	dtos := make([]SensorDto, 0, len(entities))
	for _, e := range entities {
		if !includeSensor(e) {
			continue
		}
		dtos = append(dtos, SensorDto{
			ID:                e.EntityID,
			Name:              e.FriendlyName,
			State:             e.State,
			UnitOfMeasurement: e.StringAttr("unit_of_measurement"),
			DeviceClass:       e.StringAttr("device_class"),
			Area:              e.Area,
			Floor:             e.Floor,
		})
	}
	return dtos
}

// includeSensor decides whether a sensor entity belongs on the dashboard.
func includeSensor(e homeassistant.EnhancedEntityState) bool {
	switch e.StringAttr("device_class") {
	case "timestamp", "date":
		return false
	}

	for _, marker := range phoneNameMarkers {
		if strings.Contains(e.FriendlyName, marker) {
			return false
		}
	}

	if strings.Contains(e.EntityID, "backup") {
		return false
	}

	switch e.State {
	case "unavailable", "unknown", "":
		return false
	}

	if isoDatePattern.MatchString(e.State) {
		return false
	}

	return true
}
