package weather

import (
	"context"
	"sync"
	"time"

	"github.com/vegardlu/homelab-core/internal/config"
	"github.com/vegardlu/homelab-core/internal/logging"
)

// WeatherDto is the forecast summary returned to API consumers.
type WeatherDto struct {
	Location            string  `json:"location"`
	Temperature         float64 `json:"temperature"`
	SymbolCode          string  `json:"symbolCode"`
	PrecipitationAmount float64 `json:"precipitationAmount"`
}

// fetcher fetches a forecast for a coordinate. *YRClient implements it.
type fetcher interface {
	Fetch(ctx context.Context, lat, lon float64) (Forecast, error)
}

type cacheEntry struct {
	dto       WeatherDto
	fetchedAt time.Time
}

// Service serves forecasts for the configured locations, caching each
// one for the configured TTL. A failed fetch yields a placeholder entry
// (symbol "unknown", zero values) which is cached like any other so a
// flapping upstream is not hammered.
type Service struct {
	client    fetcher
	locations []config.WeatherLocation
	ttl       time.Duration
	logger    *logging.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewService creates a weather service for the given locations.
func NewService(client *YRClient, locations []config.WeatherLocation, ttl time.Duration, logger *logging.Logger) *Service {
	return newService(client, locations, ttl, logger)
}

func newService(client fetcher, locations []config.WeatherLocation, ttl time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.New(logging.LevelInfo)
	}
	return &Service{
		client:    client,
		locations: locations,
		ttl:       ttl,
		logger:    logger,
		cache:     make(map[string]cacheEntry),
		now:       time.Now,
	}
}

// All returns forecasts for every configured location, in config order.
func (s *Service) All(ctx context.Context) []WeatherDto {
	dtos := make([]WeatherDto, 0, len(s.locations))
	for _, loc := range s.locations {
		dtos = append(dtos, s.get(ctx, loc))
	}
	return dtos
}

func (s *Service) get(ctx context.Context, loc config.WeatherLocation) WeatherDto {
	s.mu.Lock()
	entry, ok := s.cache[loc.Name]
	if ok && s.now().Sub(entry.fetchedAt) < s.ttl {
		s.mu.Unlock()
		return entry.dto
	}
	s.mu.Unlock()

	dto := s.fetch(ctx, loc)

	s.mu.Lock()
	s.cache[loc.Name] = cacheEntry{dto: dto, fetchedAt: s.now()}
	s.mu.Unlock()

	return dto
}

func (s *Service) fetch(ctx context.Context, loc config.WeatherLocation) WeatherDto {
	fc, err := s.client.Fetch(ctx, loc.Lat, loc.Lon)
	if err != nil {
		s.logger.Warn("Weather fetch failed", "location", loc.Name, "error", err)
		return WeatherDto{
			Location:   loc.Name,
			SymbolCode: "unknown",
		}
	}

	s.logger.Debug("Weather fetched", "location", loc.Name, "symbol", fc.SymbolCode, "temperature", fc.Temperature)
	return WeatherDto{
		Location:            loc.Name,
		Temperature:         fc.Temperature,
		SymbolCode:          fc.SymbolCode,
		PrecipitationAmount: fc.PrecipitationAmount,
	}
}
