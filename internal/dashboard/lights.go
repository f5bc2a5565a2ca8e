// Package dashboard builds device read models for the REST API and
// translates dashboard commands into Home Assistant service calls.
package dashboard

import (
	"context"
	"fmt"

	"github.com/vegardlu/homelab-core/internal/cache"
	"github.com/vegardlu/homelab-core/internal/homeassistant"
)

// LightDto is a light as shown on the dashboard.
type LightDto struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsOn       bool   `json:"isOn"`
	Brightness *int   `json:"brightness,omitempty"`
	Area       string `json:"area,omitempty"`
	Floor      string `json:"floor,omitempty"`
}

// LightUpdate is a requested state change for a light. Nil fields are
// left untouched.
type LightUpdate struct {
	IsOn       *bool  `json:"isOn,omitempty"`
	Brightness *int   `json:"brightness,omitempty"`
	RGBColor   []int  `json:"rgbColor,omitempty"`
}

// Service exposes dashboard read models over the entity cache and
// dispatches commands through the gateway client.
type Service struct {
	cache  *cache.Cache
	client homeassistant.Client
}

// NewService creates a dashboard service.
func NewService(c *cache.Cache, client homeassistant.Client) *Service {
	return &Service{cache: c, client: client}
}

// Lights returns all cached light entities.
func (s *Service) Lights() []LightDto {
	entities := s.cache.Filter("light", "")
	dtos := make([]LightDto, 0, len(entities))
	for _, e := range entities {
		dtos = append(dtos, toLightDto(e))
	}
	return dtos
}

func toLightDto(e homeassistant.EnhancedEntityState) LightDto {
	dto := LightDto{
		ID:    e.EntityID,
		Name:  e.FriendlyName,
		IsOn:  e.State == "on",
		Area:  e.Area,
		Floor: e.Floor,
	}
	if b, ok := e.IntAttr("brightness"); ok {
		dto.Brightness = &b
	}
	return dto
}

// ToggleLight toggles a light on or off.
func (s *Service) ToggleLight(ctx context.Context, entityID string) error {
	return s.client.CallService(ctx, "light", "toggle", entityID, nil)
}

// UpdateLight applies the requested state change. Brightness and RGB color
// imply turn_on: Home Assistant ignores them on turn_off. An update with no
// fields set is a no-op, not a turn_on.
func (s *Service) UpdateLight(ctx context.Context, entityID string, update LightUpdate) error {
	if update.IsOn == nil && update.Brightness == nil && len(update.RGBColor) == 0 {
		return nil
	}
	if update.IsOn != nil && !*update.IsOn {
		return s.client.CallService(ctx, "light", "turn_off", entityID, nil)
	}

	data := map[string]any{}
	if update.Brightness != nil {
		data["brightness"] = *update.Brightness
	}
	if len(update.RGBColor) == 3 {
		data["rgb_color"] = update.RGBColor
	} else if len(update.RGBColor) != 0 {
		return fmt.Errorf("rgbColor must have exactly 3 components, got %d", len(update.RGBColor))
	}

	return s.client.CallService(ctx, "light", "turn_on", entityID, data)
}
