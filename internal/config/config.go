package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

// PipelineConfig tunes the two-stage detection gate and the per-source
// cooldown. Defaults match the calibrated values the detectors shipped with.
type PipelineConfig struct {
	Stride            int64
	CrashThreshold    float64
	EscalateThreshold float64
	ConfirmThreshold  float64
	Cooldown          time.Duration
	FPS               float64
	SourceTTL         time.Duration
}

type AnalyzerConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

type LocatorConfig struct {
	Endpoint      string
	MinConfidence float64
	Timeout       time.Duration
}

type AlertsConfig struct {
	SNSPhoneNumber string
	SNSRegion      string
	KafkaBrokers   []string
	KafkaTopic     string
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Pipeline    PipelineConfig
	Analyzer    AnalyzerConfig
	Locator     LocatorConfig
	Alerts      AlertsConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Pipeline: PipelineConfig{
			Stride:            v.GetInt64("PIPELINE_STRIDE"),
			CrashThreshold:    v.GetFloat64("PIPELINE_CRASH_THRESHOLD"),
			EscalateThreshold: v.GetFloat64("PIPELINE_ESCALATE_THRESHOLD"),
			ConfirmThreshold:  v.GetFloat64("PIPELINE_CONFIRM_THRESHOLD"),
			Cooldown:          v.GetDuration("PIPELINE_COOLDOWN"),
			FPS:               v.GetFloat64("PIPELINE_FPS"),
			SourceTTL:         v.GetDuration("PIPELINE_SOURCE_TTL"),
		},
		Analyzer: AnalyzerConfig{
			Endpoint: v.GetString("ANALYZER_ENDPOINT"),
			APIKey:   v.GetString("ANALYZER_API_KEY"),
			Model:    v.GetString("ANALYZER_MODEL"),
			Timeout:  v.GetDuration("ANALYZER_TIMEOUT"),
		},
		Locator: LocatorConfig{
			Endpoint:      v.GetString("LOCATOR_ENDPOINT"),
			MinConfidence: v.GetFloat64("LOCATOR_MIN_CONFIDENCE"),
			Timeout:       v.GetDuration("LOCATOR_TIMEOUT"),
		},
		Alerts: AlertsConfig{
			SNSPhoneNumber: v.GetString("ALERT_SNS_PHONE_NUMBER"),
			SNSRegion:      v.GetString("ALERT_SNS_REGION"),
			KafkaBrokers:   v.GetStringSlice("ALERT_KAFKA_BROKERS"),
			KafkaTopic:     v.GetString("ALERT_KAFKA_TOPIC"),
		},
	}

	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Pipeline.Stride == 0 {
		cfg.Pipeline.Stride = 30
	}
	if cfg.Pipeline.CrashThreshold == 0 {
		cfg.Pipeline.CrashThreshold = 0.7
	}
	if cfg.Pipeline.EscalateThreshold == 0 {
		cfg.Pipeline.EscalateThreshold = 0.6
	}
	if cfg.Pipeline.ConfirmThreshold == 0 {
		cfg.Pipeline.ConfirmThreshold = 0.4
	}
	if cfg.Pipeline.Cooldown == 0 {
		cfg.Pipeline.Cooldown = 10 * time.Second
	}
	if cfg.Pipeline.FPS == 0 {
		cfg.Pipeline.FPS = 30
	}
	if cfg.Pipeline.SourceTTL == 0 {
		cfg.Pipeline.SourceTTL = 15 * time.Minute
	}
	if cfg.Analyzer.Model == "" {
		cfg.Analyzer.Model = "gemini-2.0-flash"
	}
	if cfg.Analyzer.Timeout == 0 {
		cfg.Analyzer.Timeout = 15 * time.Second
	}
	if cfg.Locator.MinConfidence == 0 {
		cfg.Locator.MinConfidence = 0.5
	}
	if cfg.Locator.Timeout == 0 {
		cfg.Locator.Timeout = 10 * time.Second
	}
	if cfg.Alerts.SNSRegion == "" {
		cfg.Alerts.SNSRegion = "us-east-1"
	}
	if cfg.Alerts.KafkaTopic == "" {
		cfg.Alerts.KafkaTopic = "incident-events"
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Pipeline.EscalateThreshold > cfg.Pipeline.CrashThreshold {
		return fmt.Errorf("PIPELINE_ESCALATE_THRESHOLD must not exceed PIPELINE_CRASH_THRESHOLD")
	}
	return nil
}
