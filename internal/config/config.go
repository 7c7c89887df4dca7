// Package config loads and validates detection and tracking parameters.
// The schema uses pointer fields so a partial JSON file only overrides what
// it names; the Get* accessors supply the documented defaults for the rest.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigError reports an invalid configuration value. It is fatal at
// startup: validation runs before any timestep is processed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// Default parameter values, following the original pipeline's published
// ERA5 configuration (6-hourly data, anomalous IVT input).
const (
	DefaultThreshold          = 250.0  // kg/m/s, candidate cells are >= this anomalous IVT
	DefaultConnectivity       = 8      // neighbour connectivity for region labeling
	DefaultMinLengthKm        = 1000.0 // axis length below this marks the candidate relaxed
	DefaultMinLengthHardKm    = 800.0  // axis length below this rejects the candidate
	DefaultMinAspect          = 2.0    // min length/width ratio
	DefaultMinMeanIntensity   = 0.0    // kg/m/s, min region mean
	DefaultMinAreaKm2         = 50e4   // km², reject smaller regions
	DefaultMaxAreaKm2         = 1800e4 // km², reject larger regions
	DefaultMinCentroidAbsLat  = 0.0    // degrees, reject centroids equatorward of this
	DefaultMaxCentroidAbsLat  = 80.0   // degrees, reject centroids poleward of this
	DefaultMinPolewardFrac    = 0.0    // min meridional fraction of axis orientation (0 = off)
	DefaultMinRegionCells     = 4      // regions smaller than this are degenerate
	DefaultMinDuration        = 4      // timesteps (24 h at 6-hourly resolution)
	DefaultMaxGap             = 1      // timesteps a track may go unmatched
	DefaultMaxSpeedKmh        = 200.0  // km/h centroid propagation bound (1200 km per 6 h step)
	DefaultOverlapThreshold   = 0.25   // mask overlap fraction for merge/split events
	DefaultMinNonRelaxed      = 2      // min non-relaxed entries for a surviving track
	DefaultDetectWorkers      = 4      // bounded detection worker pool size
	DefaultZonalCyclic        = true   // wrap region labeling across the longitude seam
	DefaultPercentileDisabled = -1.0   // sentinel: absolute threshold in use
)

// Config is the root parameter set. Fields left nil in the JSON keep their
// defaults, so partial configs are safe.
type Config struct {
	// Detection params
	Threshold           *float64 `json:"threshold,omitempty"`
	ThresholdPercentile *float64 `json:"threshold_percentile,omitempty"` // (0,1); overrides Threshold when set
	Connectivity        *int     `json:"connectivity,omitempty"`
	MinLengthKm         *float64 `json:"min_length_km,omitempty"`
	MinLengthHardKm     *float64 `json:"min_length_hard_km,omitempty"`
	MinAspect           *float64 `json:"min_aspect,omitempty"`
	MinMeanIntensity    *float64 `json:"min_mean_intensity,omitempty"`
	MinAreaKm2          *float64 `json:"min_area_km2,omitempty"`
	MaxAreaKm2          *float64 `json:"max_area_km2,omitempty"`
	MinCentroidAbsLat   *float64 `json:"min_centroid_abs_lat,omitempty"`
	MaxCentroidAbsLat   *float64 `json:"max_centroid_abs_lat,omitempty"`
	MinPolewardFrac     *float64 `json:"min_poleward_frac,omitempty"`
	MinRegionCells      *int     `json:"min_region_cells,omitempty"`
	ZonalCyclic         *bool    `json:"zonal_cyclic,omitempty"`

	// Tracking params
	MinDuration      *int     `json:"min_duration,omitempty"`
	MaxGap           *int     `json:"max_gap,omitempty"`
	MaxSpeedKmh      *float64 `json:"max_speed_kmh,omitempty"`
	OverlapThreshold *float64 `json:"overlap_threshold,omitempty"`
	MinNonRelaxed    *int     `json:"min_non_relaxed,omitempty"`

	// Runner params
	DetectWorkers *int `json:"detect_workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }

// Default returns a Config with every field nil, so every accessor reports
// its default.
func Default() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The path must carry a .json
// extension; fields omitted from the file keep their defaults. The result is
// validated before being returned.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, &ConfigError{Field: "path", Reason: fmt.Sprintf("config file must have .json extension, got %q", ext)}
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every explicitly set field for plausibility. It returns
// the first *ConfigError found, or nil.
func (c *Config) Validate() error {
	if c.Threshold != nil && *c.Threshold < 0 {
		return &ConfigError{Field: "threshold", Reason: "must be non-negative"}
	}
	if c.ThresholdPercentile != nil && (*c.ThresholdPercentile <= 0 || *c.ThresholdPercentile >= 1) {
		return &ConfigError{Field: "threshold_percentile", Reason: "must be in (0, 1)"}
	}
	if c.Connectivity != nil && *c.Connectivity != 4 && *c.Connectivity != 8 {
		return &ConfigError{Field: "connectivity", Reason: "must be 4 or 8"}
	}
	if c.MinLengthKm != nil && *c.MinLengthKm < 0 {
		return &ConfigError{Field: "min_length_km", Reason: "must be non-negative"}
	}
	if c.MinLengthHardKm != nil && *c.MinLengthHardKm < 0 {
		return &ConfigError{Field: "min_length_hard_km", Reason: "must be non-negative"}
	}
	if c.GetMinLengthHardKm() > c.GetMinLengthKm() {
		return &ConfigError{Field: "min_length_hard_km", Reason: "must not exceed min_length_km"}
	}
	if c.MinAspect != nil && *c.MinAspect < 0 {
		return &ConfigError{Field: "min_aspect", Reason: "must be non-negative"}
	}
	if c.MinMeanIntensity != nil && *c.MinMeanIntensity < 0 {
		return &ConfigError{Field: "min_mean_intensity", Reason: "must be non-negative"}
	}
	if c.MinAreaKm2 != nil && *c.MinAreaKm2 < 0 {
		return &ConfigError{Field: "min_area_km2", Reason: "must be non-negative"}
	}
	if c.GetMinAreaKm2() > c.GetMaxAreaKm2() {
		return &ConfigError{Field: "max_area_km2", Reason: "must not be smaller than min_area_km2"}
	}
	if c.GetMinCentroidAbsLat() < 0 || c.GetMaxCentroidAbsLat() > 90 ||
		c.GetMinCentroidAbsLat() > c.GetMaxCentroidAbsLat() {
		return &ConfigError{Field: "centroid_abs_lat", Reason: "band must satisfy 0 <= min <= max <= 90"}
	}
	if f := c.GetMinPolewardFrac(); f < 0 || f > 1 {
		return &ConfigError{Field: "min_poleward_frac", Reason: "must be in [0, 1]"}
	}
	if c.GetMinRegionCells() < 2 {
		return &ConfigError{Field: "min_region_cells", Reason: "must be at least 2"}
	}
	if c.GetMinDuration() < 1 {
		return &ConfigError{Field: "min_duration", Reason: "must be at least 1"}
	}
	if c.GetMaxGap() < 0 {
		return &ConfigError{Field: "max_gap", Reason: "must be non-negative"}
	}
	if c.GetMaxSpeedKmh() <= 0 {
		return &ConfigError{Field: "max_speed_kmh", Reason: "must be positive"}
	}
	if t := c.GetOverlapThreshold(); t <= 0 || t > 1 {
		return &ConfigError{Field: "overlap_threshold", Reason: "must be in (0, 1]"}
	}
	if c.GetMinNonRelaxed() < 0 {
		return &ConfigError{Field: "min_non_relaxed", Reason: "must be non-negative"}
	}
	if c.GetDetectWorkers() < 1 {
		return &ConfigError{Field: "detect_workers", Reason: "must be at least 1"}
	}
	return nil
}

// UsesPercentile reports whether thresholding is percentile-based.
func (c *Config) UsesPercentile() bool { return c.ThresholdPercentile != nil }

func (c *Config) GetThreshold() float64 {
	if c.Threshold != nil {
		return *c.Threshold
	}
	return DefaultThreshold
}

func (c *Config) GetThresholdPercentile() float64 {
	if c.ThresholdPercentile != nil {
		return *c.ThresholdPercentile
	}
	return DefaultPercentileDisabled
}

func (c *Config) GetConnectivity() int {
	if c.Connectivity != nil {
		return *c.Connectivity
	}
	return DefaultConnectivity
}

func (c *Config) GetMinLengthKm() float64 {
	if c.MinLengthKm != nil {
		return *c.MinLengthKm
	}
	return DefaultMinLengthKm
}

func (c *Config) GetMinLengthHardKm() float64 {
	if c.MinLengthHardKm != nil {
		return *c.MinLengthHardKm
	}
	return DefaultMinLengthHardKm
}

func (c *Config) GetMinAspect() float64 {
	if c.MinAspect != nil {
		return *c.MinAspect
	}
	return DefaultMinAspect
}

func (c *Config) GetMinMeanIntensity() float64 {
	if c.MinMeanIntensity != nil {
		return *c.MinMeanIntensity
	}
	return DefaultMinMeanIntensity
}

func (c *Config) GetMinAreaKm2() float64 {
	if c.MinAreaKm2 != nil {
		return *c.MinAreaKm2
	}
	return DefaultMinAreaKm2
}

func (c *Config) GetMaxAreaKm2() float64 {
	if c.MaxAreaKm2 != nil {
		return *c.MaxAreaKm2
	}
	return DefaultMaxAreaKm2
}

func (c *Config) GetMinCentroidAbsLat() float64 {
	if c.MinCentroidAbsLat != nil {
		return *c.MinCentroidAbsLat
	}
	return DefaultMinCentroidAbsLat
}

func (c *Config) GetMaxCentroidAbsLat() float64 {
	if c.MaxCentroidAbsLat != nil {
		return *c.MaxCentroidAbsLat
	}
	return DefaultMaxCentroidAbsLat
}

func (c *Config) GetMinPolewardFrac() float64 {
	if c.MinPolewardFrac != nil {
		return *c.MinPolewardFrac
	}
	return DefaultMinPolewardFrac
}

func (c *Config) GetMinRegionCells() int {
	if c.MinRegionCells != nil {
		return *c.MinRegionCells
	}
	return DefaultMinRegionCells
}

func (c *Config) GetZonalCyclic() bool {
	if c.ZonalCyclic != nil {
		return *c.ZonalCyclic
	}
	return DefaultZonalCyclic
}

func (c *Config) GetMinDuration() int {
	if c.MinDuration != nil {
		return *c.MinDuration
	}
	return DefaultMinDuration
}

func (c *Config) GetMaxGap() int {
	if c.MaxGap != nil {
		return *c.MaxGap
	}
	return DefaultMaxGap
}

func (c *Config) GetMaxSpeedKmh() float64 {
	if c.MaxSpeedKmh != nil {
		return *c.MaxSpeedKmh
	}
	return DefaultMaxSpeedKmh
}

func (c *Config) GetOverlapThreshold() float64 {
	if c.OverlapThreshold != nil {
		return *c.OverlapThreshold
	}
	return DefaultOverlapThreshold
}

func (c *Config) GetMinNonRelaxed() int {
	if c.MinNonRelaxed != nil {
		return *c.MinNonRelaxed
	}
	return DefaultMinNonRelaxed
}

func (c *Config) GetDetectWorkers() int {
	if c.DetectWorkers != nil {
		return *c.DetectWorkers
	}
	return DefaultDetectWorkers
}
