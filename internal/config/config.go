// Package config loads application configuration from config.yaml and
// PARCELRISK_* environment variables, and configures the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	Risk    RiskConfig    `yaml:"risk" mapstructure:"risk"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`             // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"` // postgres DSN
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// DataConfig configures the upstream geospatial dataset sources.
type DataConfig struct {
	ParcelsURL  string  `yaml:"parcels_url" mapstructure:"parcels_url"`
	WetlandsURL string  `yaml:"wetlands_url" mapstructure:"wetlands_url"`
	RoadsURL    string  `yaml:"roads_url" mapstructure:"roads_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries     int     `yaml:"retries" mapstructure:"retries"`
	CenterLat   float64 `yaml:"center_lat" mapstructure:"center_lat"`
	CenterLon   float64 `yaml:"center_lon" mapstructure:"center_lon"`
	IDProperty  string  `yaml:"id_property" mapstructure:"id_property"`
}

// RiskConfig configures risk scoring and filtering.
type RiskConfig struct {
	WetlandWeight       float64 `yaml:"wetland_weight" mapstructure:"wetland_weight"`
	RoadWeight          float64 `yaml:"road_weight" mapstructure:"road_weight"`
	WetlandBufferMeters float64 `yaml:"wetland_buffer_meters" mapstructure:"wetland_buffer_meters"`
	RoadBufferMeters    float64 `yaml:"road_buffer_meters" mapstructure:"road_buffer_meters"`
	DefaultThreshold    float64 `yaml:"default_threshold" mapstructure:"default_threshold"`
}

// GeocodeConfig configures the address geocoding cascade.
type GeocodeConfig struct {
	Providers          []string `yaml:"providers" mapstructure:"providers"` // tried in order
	NominatimBaseURL   string   `yaml:"nominatim_base_url" mapstructure:"nominatim_base_url"`
	NominatimUserAgent string   `yaml:"nominatim_user_agent" mapstructure:"nominatim_user_agent"`
	CensusBaseURL      string   `yaml:"census_base_url" mapstructure:"census_base_url"`
	RatePerSec         float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	CacheEnabled       bool     `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CacheTTLDays       int      `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins      []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	OverlayCacheSize    int      `yaml:"overlay_cache_size" mapstructure:"overlay_cache_size"`
	OverlayCacheTTLSecs int      `yaml:"overlay_cache_ttl_secs" mapstructure:"overlay_cache_ttl_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PARCELRISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "parcelrisk.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.overlay_cache_size", 32)
	v.SetDefault("server.overlay_cache_ttl_secs", 3600)
	v.SetDefault("data.parcels_url", "https://geodata.md.gov/imap/rest/services/PlanningCadastre/MD_ParcelBoundaries/MapServer/0/query?outFields=*&where=1%3D1&f=geojson")
	v.SetDefault("data.wetlands_url", "https://geodata.md.gov/imap/rest/services/Hydrology/MD_Wetlands/MapServer/0/query?outFields=*&where=1%3D1&f=geojson")
	v.SetDefault("data.roads_url", "https://services.arcgis.com/njFNhDsUCentVYJW/arcgis/rest/services/MDOT_Know_Your_Roads/FeatureServer/0/query?outFields=*&where=1%3D1&f=geojson")
	v.SetDefault("data.timeout_secs", 60)
	v.SetDefault("data.retries", 2)
	v.SetDefault("data.center_lat", 39.0457)
	v.SetDefault("data.center_lon", -76.6413)
	v.SetDefault("data.id_property", "OBJECTID")
	v.SetDefault("risk.wetland_weight", 100)
	v.SetDefault("risk.road_weight", 0)
	v.SetDefault("risk.wetland_buffer_meters", 100)
	v.SetDefault("risk.road_buffer_meters", 50)
	v.SetDefault("risk.default_threshold", 50)
	v.SetDefault("geocode.providers", []string{"nominatim", "census"})
	v.SetDefault("geocode.nominatim_base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.nominatim_user_agent", "parcelrisk/1.0 (mosquito-control dashboard)")
	v.SetDefault("geocode.census_base_url", "https://geocoding.geo.census.gov")
	v.SetDefault("geocode.rate_per_sec", 1)
	v.SetDefault("geocode.cache_enabled", true)
	v.SetDefault("geocode.cache_ttl_days", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
