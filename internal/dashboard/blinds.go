package dashboard

import (
	"context"
	"fmt"

	"github.com/vegardlu/homelab-core/internal/homeassistant"
)

// BlindDto is a cover entity as shown on the dashboard.
type BlindDto struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	State           string `json:"state"`
	CurrentPosition *int   `json:"currentPosition,omitempty"`
	Area            string `json:"area,omitempty"`
	Floor           string `json:"floor,omitempty"`
}

// Blinds returns all cached cover entities.
func (s *Service) Blinds() []BlindDto {
	entities := s.cache.Filter("cover", "")
	dtos := make([]BlindDto, 0, len(entities))
	for _, e := range entities {
		dtos = append(dtos, toBlindDto(e))
	}
	return dtos
}

func toBlindDto(e homeassistant.EnhancedEntityState) BlindDto {
	dto := BlindDto{
		ID:    e.EntityID,
		Name:  e.FriendlyName,
		State: e.State,
		Area:  e.Area,
		Floor: e.Floor,
	}
	if pos, ok := e.IntAttr("current_position"); ok {
		dto.CurrentPosition = &pos
	}
	return dto
}

// SetBlindPosition moves a cover to the given position (0 closed, 100 open).
func (s *Service) SetBlindPosition(ctx context.Context, entityID string, position int) error {
	if position < 0 || position > 100 {
		return fmt.Errorf("position must be between 0 and 100, got %d", position)
	}
	return s.client.CallService(ctx, "cover", "set_cover_position", entityID, map[string]any{
		"position": position,
	})
}

// OpenBlind fully opens a cover.
func (s *Service) OpenBlind(ctx context.Context, entityID string) error {
	return s.client.CallService(ctx, "cover", "open_cover", entityID, nil)
}

// CloseBlind fully closes a cover.
func (s *Service) CloseBlind(ctx context.Context, entityID string) error {
	return s.client.CallService(ctx, "cover", "close_cover", entityID, nil)
}

// StopBlind stops a moving cover.
func (s *Service) StopBlind(ctx context.Context, entityID string) error {
	return s.client.CallService(ctx, "cover", "stop_cover", entityID, nil)
}
