package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/location-data-aggregation/internal/logging"
)

const defaultConfigFile = "config.yaml"

type AppConfig struct {
	Port   string `yaml:"port" validate:"required"`
	WSAddr string `yaml:"ws_addr"`

	Location LocationConfig `yaml:"location"`
	Upstream UpstreamConfig `yaml:"upstream"`
	GPS      GPSConfig      `yaml:"gps"`
	Pressure PressureConfig `yaml:"pressure"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Log      logging.Config `yaml:"log"`
}

type LocationConfig struct {
	// Interval is how often the GPS is polled while updates are running.
	Interval     time.Duration `yaml:"interval" validate:"min=1s"`
	StationLimit int           `yaml:"station_limit" validate:"min=1,max=50"`
}

type UpstreamConfig struct {
	HTTPTimeout              time.Duration `yaml:"http_timeout" validate:"min=1s"`
	GSIBaseURL               string        `yaml:"gsi_base_url" validate:"omitempty,url"`
	HeartRailsGeoBaseURL     string        `yaml:"heartrails_geo_base_url" validate:"omitempty,url"`
	HeartRailsExpressBaseURL string        `yaml:"heartrails_express_base_url" validate:"omitempty,url"`
	AddressBackend           string        `yaml:"address_backend" validate:"oneof=heartrails google"`
	GoogleAPIKey             string        `yaml:"google_api_key" validate:"required_if=AddressBackend google"`
	UserAgent                string        `yaml:"user_agent"`
}

type GPSConfig struct {
	Type     string  `yaml:"type" validate:"oneof=nmea demo fixed disabled"`
	Port     string  `yaml:"port" validate:"required_if=Type nmea"`
	BaudRate int     `yaml:"baud_rate" validate:"min=0"`
	FixedLat float64 `yaml:"fixed_lat" validate:"min=-90,max=90"`
	FixedLon float64 `yaml:"fixed_lon" validate:"min=-180,max=180"`
}

type PressureConfig struct {
	Type     string        `yaml:"type" validate:"oneof=iio demo none"`
	Device   string        `yaml:"device"`
	Interval time.Duration `yaml:"interval" validate:"min=100ms"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" validate:"required_with=Brokers"`
}

// Enabled reports whether snapshot publishing is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Default returns the configuration used when neither file nor environment
// sets a value.
func Default() *AppConfig {
	return &AppConfig{
		Port:   "8080",
		WSAddr: ":8081",
		Location: LocationConfig{
			Interval:     60 * time.Second,
			StationLimit: 5,
		},
		Upstream: UpstreamConfig{
			HTTPTimeout:    30 * time.Second,
			AddressBackend: "heartrails",
			UserAgent:      "location-data-aggregation",
		},
		GPS: GPSConfig{
			Type:     "demo",
			Port:     "/dev/ttyGPS",
			BaudRate: 9600,
		},
		Pressure: PressureConfig{
			Type:     "demo",
			Interval: time.Second,
		},
		Kafka: KafkaConfig{
			Topic: "location-snapshots",
		},
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads .env, then the YAML file named by CONFIG_FILE, then applies
// environment overrides and validates the result.
func Load() (*AppConfig, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	return LoadFile(getenvDefault("CONFIG_FILE", defaultConfigFile))
}

// LoadFile is Load without the .env step. A missing file is not an error.
func LoadFile(path string) (*AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks cfg against its struct tags.
func Validate(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *AppConfig) applyEnv() error {
	c.Port = getenvDefault("PORT", c.Port)
	c.WSAddr = getenvDefault("WS_ADDR", c.WSAddr)

	var err error
	if c.Location.Interval, err = getenvDuration("LOCATION_INTERVAL", c.Location.Interval); err != nil {
		return err
	}
	c.Location.StationLimit = getenvInt("STATION_LIMIT", c.Location.StationLimit)

	if c.Upstream.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", c.Upstream.HTTPTimeout); err != nil {
		return err
	}
	c.Upstream.GSIBaseURL = getenvDefault("GSI_BASE_URL", c.Upstream.GSIBaseURL)
	c.Upstream.HeartRailsGeoBaseURL = getenvDefault("HEARTRAILS_GEO_BASE_URL", c.Upstream.HeartRailsGeoBaseURL)
	c.Upstream.HeartRailsExpressBaseURL = getenvDefault("HEARTRAILS_EXPRESS_BASE_URL", c.Upstream.HeartRailsExpressBaseURL)
	c.Upstream.AddressBackend = getenvDefault("ADDRESS_BACKEND", c.Upstream.AddressBackend)
	c.Upstream.GoogleAPIKey = getenvDefault("GOOGLE_GEOCODING_API_KEY", c.Upstream.GoogleAPIKey)
	c.Upstream.UserAgent = getenvDefault("USER_AGENT", c.Upstream.UserAgent)

	c.GPS.Type = getenvDefault("GPS_TYPE", c.GPS.Type)
	c.GPS.Port = getenvDefault("GPS_PORT", c.GPS.Port)
	c.GPS.BaudRate = getenvInt("GPS_BAUD", c.GPS.BaudRate)
	if c.GPS.FixedLat, err = getenvFloat("GPS_FIXED_LAT", c.GPS.FixedLat); err != nil {
		return err
	}
	if c.GPS.FixedLon, err = getenvFloat("GPS_FIXED_LON", c.GPS.FixedLon); err != nil {
		return err
	}

	c.Pressure.Type = getenvDefault("PRESSURE_TYPE", c.Pressure.Type)
	c.Pressure.Device = getenvDefault("PRESSURE_DEVICE", c.Pressure.Device)
	if c.Pressure.Interval, err = getenvDuration("PRESSURE_INTERVAL", c.Pressure.Interval); err != nil {
		return err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	c.Kafka.Topic = getenvDefault("KAFKA_TOPIC", c.Kafka.Topic)

	c.Log.Level = getenvDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenvDefault("LOG_FORMAT", c.Log.Format)
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
