package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/pricing"
)

// Config for the whole application
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	API         APIConfig         `mapstructure:"api"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Calculation CalculationConfig `mapstructure:"calculation"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// General application configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// Configuration for the API server
type APIConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
	RateLimit       RateLimit     `mapstructure:"rate_limit"`
}

// Per-client limit on run submissions; zero disables it
type RateLimit struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// Configuration for the engine generator and the run store
type EngineConfig struct {
	Workers                int    `mapstructure:"workers"`
	RepresentationCurrency string `mapstructure:"representation_currency"`
	MaxStoredRuns          int    `mapstructure:"max_stored_runs"`
	MaxInFlight            int    `mapstructure:"max_in_flight"`
}

// Configuration of what each engine computes
type CalculationConfig struct {
	NPV           bool `mapstructure:"npv"`
	FxExposure    bool `mapstructure:"fx_exposure"`
	Delta         bool `mapstructure:"delta"`
	Gamma         bool `mapstructure:"gamma"`
	Vega          bool `mapstructure:"vega"`
	VegaStructure bool `mapstructure:"vega_structure"`
	VegaMatrix    bool `mapstructure:"vega_matrix"`
	Theta         bool `mapstructure:"theta"`
	DivDelta      bool `mapstructure:"div_delta"`
	DivStructure  bool `mapstructure:"div_structure"`
	Rho           bool `mapstructure:"rho"`
	RhoStructure  bool `mapstructure:"rho_structure"`

	RhoTenors  []string `mapstructure:"rho_tenors"`
	VegaTenors []string `mapstructure:"vega_tenors"`
	DivTenors  []string `mapstructure:"div_tenors"`

	ThetaDay       int     `mapstructure:"theta_day"`
	DeltaBumpRatio float64 `mapstructure:"delta_bump_ratio"`
	VegaBump       float64 `mapstructure:"vega_bump"`
	RhoBump        float64 `mapstructure:"rho_bump"`
	DivBumpRatio   float64 `mapstructure:"div_bump_ratio"`
}

// Configuration for Kafka
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks string        `mapstructure:"required_acks"`
	Compression  string        `mapstructure:"compression"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Configuration for metrics
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// Configuration for Prometheus metrics
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load reads path, when given, and then the QPE_ environment on top of the
// defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("QPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the values other packages cannot default on their own.
func (c *Config) Validate() error {
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be at least 1, got %d", c.Engine.Workers)
	}
	if c.Engine.MaxInFlight < 1 {
		return fmt.Errorf("engine.max_in_flight must be at least 1, got %d", c.Engine.MaxInFlight)
	}
	if _, err := c.Engine.Currency(); err != nil {
		return fmt.Errorf("engine.representation_currency: %w", err)
	}
	if err := c.Calculation.ToConfiguration().Validate(); err != nil {
		return fmt.Errorf("calculation: %w", err)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka is enabled without brokers")
	}
	return nil
}

// Currency parses the representation currency; empty means each
// instrument's own currency.
func (e EngineConfig) Currency() (marketdata.Currency, error) {
	if e.RepresentationCurrency == "" {
		return marketdata.NIL, nil
	}
	return marketdata.ParseCurrency(e.RepresentationCurrency)
}

// ToConfiguration builds the engine-side calculation configuration.
func (c CalculationConfig) ToConfiguration() *pricing.CalculationConfiguration {
	return &pricing.CalculationConfiguration{
		NPV:            c.NPV,
		FxExposure:     c.FxExposure,
		Delta:          c.Delta,
		Gamma:          c.Gamma,
		Vega:           c.Vega,
		VegaStructure:  c.VegaStructure,
		VegaMatrix:     c.VegaMatrix,
		Theta:          c.Theta,
		DivDelta:       c.DivDelta,
		DivStructure:   c.DivStructure,
		Rho:            c.Rho,
		RhoStructure:   c.RhoStructure,
		RhoTenors:      c.RhoTenors,
		VegaTenors:     c.VegaTenors,
		DivTenors:      c.DivTenors,
		ThetaDay:       c.ThetaDay,
		DeltaBumpRatio: c.DeltaBumpRatio,
		VegaBump:       c.VegaBump,
		RhoBump:        c.RhoBump,
		DivBumpRatio:   c.DivBumpRatio,
	}
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "quant-pricing-engine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "10s")
	v.SetDefault("api.write_timeout", "60s")
	v.SetDefault("api.shutdown_timeout", "30s")
	v.SetDefault("api.cors.allowed_origins", []string{"*"})
	v.SetDefault("api.cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("api.cors.allowed_headers", []string{"Authorization", "Content-Type"})
	v.SetDefault("api.rate_limit.requests_per_second", 0)
	v.SetDefault("api.rate_limit.burst", 0)

	// Engine defaults
	v.SetDefault("engine.workers", 8)
	v.SetDefault("engine.representation_currency", "")
	v.SetDefault("engine.max_stored_runs", 100)
	v.SetDefault("engine.max_in_flight", 4)

	// Calculation defaults
	d := pricing.DefaultCalculationConfiguration()
	v.SetDefault("calculation.npv", d.NPV)
	v.SetDefault("calculation.fx_exposure", d.FxExposure)
	v.SetDefault("calculation.delta", d.Delta)
	v.SetDefault("calculation.gamma", d.Gamma)
	v.SetDefault("calculation.vega", d.Vega)
	v.SetDefault("calculation.vega_structure", d.VegaStructure)
	v.SetDefault("calculation.vega_matrix", d.VegaMatrix)
	v.SetDefault("calculation.theta", d.Theta)
	v.SetDefault("calculation.div_delta", d.DivDelta)
	v.SetDefault("calculation.div_structure", d.DivStructure)
	v.SetDefault("calculation.rho", d.Rho)
	v.SetDefault("calculation.rho_structure", d.RhoStructure)
	v.SetDefault("calculation.rho_tenors", d.RhoTenors)
	v.SetDefault("calculation.vega_tenors", d.VegaTenors)
	v.SetDefault("calculation.div_tenors", d.DivTenors)
	v.SetDefault("calculation.theta_day", d.ThetaDay)
	v.SetDefault("calculation.delta_bump_ratio", d.DeltaBumpRatio)
	v.SetDefault("calculation.vega_bump", d.VegaBump)
	v.SetDefault("calculation.rho_bump", d.RhoBump)
	v.SetDefault("calculation.div_bump_ratio", d.DivBumpRatio)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "pricing.results")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "50ms")
	v.SetDefault("kafka.required_acks", "all")
	v.SetDefault("kafka.compression", "snappy")
	v.SetDefault("kafka.write_timeout", "10s")

	// Metrics defaults
	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.port", 9090)
	v.SetDefault("metrics.prometheus.path", "/metrics")
}

func GetConfigPath() string {
	configPath := os.Getenv("QPE_CONFIG_PATH")
	if configPath != "" {
		return configPath
	}

	return "./config/config.yaml"
}
