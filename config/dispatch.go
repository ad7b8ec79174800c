package config

import (
	"fmt"
	"time"
)

// DispatchConfig tunes the lifecycle and matching rules.
type DispatchConfig struct {
	// RequestTTLMinutes is how long a request stays acceptable.
	RequestTTLMinutes int `json:"request_ttl_minutes"`
	// ServiceSoftLimitMinutes is the advisory cap on work duration.
	ServiceSoftLimitMinutes int `json:"service_soft_limit_minutes"`
	// FreshnessWindowMinutes bounds how old a unit location fix may be
	// before the unit drops out of proximity results.
	FreshnessWindowMinutes int `json:"freshness_window_minutes"`
	// MinutesPerKm converts distance to the advertised ETA.
	MinutesPerKm float64 `json:"minutes_per_km"`
	// DefaultRadiusKm applies when a proximity query omits a radius.
	DefaultRadiusKm float64 `json:"default_radius_km"`
	// TerritoryRadiusKm bounds the nearest-territory fallback.
	TerritoryRadiusKm float64 `json:"territory_radius_km"`
}

func (c *DispatchConfig) SetDefaults() {
	if c.RequestTTLMinutes == 0 {
		c.RequestTTLMinutes = 120
	}
	if c.ServiceSoftLimitMinutes == 0 {
		c.ServiceSoftLimitMinutes = 60
	}
	if c.FreshnessWindowMinutes == 0 {
		c.FreshnessWindowMinutes = 15
	}
	if c.MinutesPerKm == 0 {
		c.MinutesPerKm = 2.5
	}
	if c.DefaultRadiusKm == 0 {
		c.DefaultRadiusKm = 10
	}
	if c.TerritoryRadiusKm == 0 {
		c.TerritoryRadiusKm = 50
	}
}

func (c DispatchConfig) Validate() error {
	if c.RequestTTLMinutes < 0 {
		return fmt.Errorf("request_ttl_minutes must not be negative")
	}
	if c.MinutesPerKm <= 0 {
		return fmt.Errorf("minutes_per_km must be positive")
	}
	if c.DefaultRadiusKm <= 0 {
		return fmt.Errorf("default_radius_km must be positive")
	}
	return nil
}

// RequestTTL returns the TTL as a duration.
func (c DispatchConfig) RequestTTL() time.Duration {
	return time.Duration(c.RequestTTLMinutes) * time.Minute
}

// ServiceSoftLimit returns the soft limit as a duration.
func (c DispatchConfig) ServiceSoftLimit() time.Duration {
	return time.Duration(c.ServiceSoftLimitMinutes) * time.Minute
}

// FreshnessWindow returns the freshness window as a duration.
func (c DispatchConfig) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowMinutes) * time.Minute
}
