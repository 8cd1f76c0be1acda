package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Ingestion IngestionConfig
	Alerts    AlertConfig
	Anomaly   AnomalyConfig
	Sitrep    SitrepConfig
	Retrain   RetrainConfig
	DB        DatabaseConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type IngestionConfig struct {
	Enabled          bool
	MaxEventsPerPoll int
	MockSeed         int64

	WeatherAPIKey       string
	WeatherBaseURL      string
	WeatherPollInterval time.Duration

	GDACSURL          string
	GDACSPollInterval time.Duration

	USGSURL          string
	USGSMinMagnitude float64
	USGSPollInterval time.Duration

	FIRMSAPIKey       string
	FIRMSBaseURL      string
	FIRMSSource       string
	FIRMSPollInterval time.Duration

	SocialBearerToken  string
	SocialKeywords     []string
	SocialPollInterval time.Duration
}

type AlertConfig struct {
	SeverityThreshold string
	SendGridAPIKey    string
	SendGridBaseURL   string
	SendGridFromEmail string
}

type AnomalyConfig struct {
	Interval      time.Duration
	Contamination float64
	MinSamples    int
	LookbackHours int
}

type SitrepConfig struct {
	CronHourUTC int
}

type RetrainConfig struct {
	ThresholdMAE      float64
	ThresholdAccuracy float64
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Ingestion: IngestionConfig{
			Enabled:          getEnvBool("INGESTION_ENABLED", true),
			MaxEventsPerPoll: getEnvInt("MAX_EVENTS_PER_POLL", 50),
			MockSeed:         int64(getEnvInt("MOCK_SEED", 42)),

			WeatherAPIKey:       getEnv("OPENWEATHERMAP_API_KEY", ""),
			WeatherBaseURL:      getEnv("OPENWEATHERMAP_BASE_URL", "https://api.openweathermap.org/data/2.5"),
			WeatherPollInterval: getEnvSeconds("WEATHER_POLL_INTERVAL_S", 600),

			GDACSURL:          getEnv("GDACS_RSS_URL", "https://www.gdacs.org/xml/rss.xml"),
			GDACSPollInterval: getEnvSeconds("GDACS_POLL_INTERVAL_S", 900),

			USGSURL:          getEnv("USGS_FEED_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson"),
			USGSMinMagnitude: getEnvFloat("USGS_MIN_MAGNITUDE", 4.0),
			USGSPollInterval: getEnvSeconds("USGS_POLL_INTERVAL_S", 300),

			FIRMSAPIKey:       getEnv("FIRMS_API_KEY", ""),
			FIRMSBaseURL:      getEnv("FIRMS_BASE_URL", "https://firms.modaps.eosdis.nasa.gov/api/area/csv"),
			FIRMSSource:       getEnv("FIRMS_SOURCE", "VIIRS_SNPP_NRT"),
			FIRMSPollInterval: getEnvSeconds("FIRMS_POLL_INTERVAL_S", 1800),

			SocialBearerToken: getEnv("TWITTER_BEARER_TOKEN", ""),
			SocialKeywords: getEnvList("SOCIAL_KEYWORDS", []string{
				"SOS", "help needed", "disaster", "earthquake", "flood",
				"rescue", "emergency relief", "trapped",
			}),
			SocialPollInterval: getEnvSeconds("SOCIAL_POLL_INTERVAL_S", 300),
		},
		Alerts: AlertConfig{
			SeverityThreshold: getEnv("ALERT_SEVERITY_THRESHOLD", "critical"),
			SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
			SendGridBaseURL:   getEnv("SENDGRID_BASE_URL", "https://api.sendgrid.com/v3"),
			SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", "alerts@reliefgrid.org"),
		},
		Anomaly: AnomalyConfig{
			Interval:      getEnvSeconds("ANOMALY_DETECTION_INTERVAL_S", 3600),
			Contamination: getEnvFloat("ANOMALY_CONTAMINATION", 0.05),
			MinSamples:    getEnvInt("ANOMALY_MIN_SAMPLES", 20),
			LookbackHours: getEnvInt("ANOMALY_LOOKBACK_HOURS", 48),
		},
		Sitrep: SitrepConfig{
			CronHourUTC: getEnvInt("SITREP_CRON_HOUR_UTC", 6),
		},
		Retrain: RetrainConfig{
			ThresholdMAE:      getEnvFloat("AUTO_RETRAIN_THRESHOLD_MAE", 0.3),
			ThresholdAccuracy: getEnvFloat("AUTO_RETRAIN_THRESHOLD_ACCURACY", 0.6),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/reliefgrid.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	intervals := map[string]time.Duration{
		"weather": c.Ingestion.WeatherPollInterval,
		"gdacs":   c.Ingestion.GDACSPollInterval,
		"usgs":    c.Ingestion.USGSPollInterval,
		"firms":   c.Ingestion.FIRMSPollInterval,
		"social":  c.Ingestion.SocialPollInterval,
	}
	for name, iv := range intervals {
		if iv < time.Minute {
			return fmt.Errorf("%s poll interval must be at least 1 minute", name)
		}
	}

	if c.Ingestion.MaxEventsPerPoll < 1 {
		return fmt.Errorf("max events per poll must be positive")
	}

	switch c.Alerts.SeverityThreshold {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("invalid alert severity threshold: %s", c.Alerts.SeverityThreshold)
	}

	if c.Anomaly.Contamination <= 0 || c.Anomaly.Contamination > 0.5 {
		return fmt.Errorf("anomaly contamination must be in (0, 0.5], got %g", c.Anomaly.Contamination)
	}
	if c.Anomaly.MinSamples < 2 {
		return fmt.Errorf("anomaly min samples must be at least 2")
	}
	if c.Anomaly.LookbackHours < 1 {
		return fmt.Errorf("anomaly lookback hours must be positive")
	}

	if c.Sitrep.CronHourUTC < 0 || c.Sitrep.CronHourUTC > 23 {
		return fmt.Errorf("invalid sitrep cron hour: %d", c.Sitrep.CronHourUTC)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
