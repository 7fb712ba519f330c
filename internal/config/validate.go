package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/scheduler"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors: " + strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	// Validate environment
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[cfg.Env] {
		errs = append(errs, ValidationError{
			Field:   "env",
			Message: "must be one of: development, staging, production, test",
		})
	}

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateData(&cfg.Data)...)
	errs = append(errs, validateDashboard(&cfg.Dashboard)...)

	// The database is only needed when it is the data source.
	if cfg.Data.Source == SourcePostgres {
		errs = append(errs, validateDatabase(&cfg.Database)...)
	}
	if cfg.RabbitMQ.Enabled {
		errs = append(errs, validateRabbitMQ(&cfg.RabbitMQ)...)
	}

	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateTracing(&cfg.Tracing)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(s *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.http_port",
			Message: "must be a valid port number (1-65535)",
		})
	}
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.grpc_port",
			Message: "must be a valid port number (1-65535)",
		})
	}
	if s.GRPCPort == s.HTTPPort {
		errs = append(errs, ValidationError{
			Field:   "server.grpc_port/http_port",
			Message: "gRPC and HTTP ports must be different",
		})
	}
	errs = append(errs, validateDuration("server.shutdown_timeout", s.ShutdownTimeout)...)

	return errs
}

func validateData(d *DataConfig) ValidationErrors {
	var errs ValidationErrors

	switch d.Source {
	case SourceFile:
		if d.Dir == "" {
			errs = append(errs, ValidationError{
				Field:   "data.dir",
				Message: "is required for the file source",
			})
		}
	case SourceHTTP:
		u, err := url.Parse(d.BaseURL)
		if d.BaseURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "data.base_url",
				Message: "must be an absolute http(s) URL for the http source",
			})
		}
	case SourcePostgres:
	default:
		errs = append(errs, ValidationError{
			Field:   "data.source",
			Message: "must be one of: file, http, postgres",
		})
	}

	if d.Source != SourcePostgres {
		if d.MarketFile == "" {
			errs = append(errs, ValidationError{Field: "data.market_file", Message: "is required"})
		}
		if d.EquilibriumFile == "" {
			errs = append(errs, ValidationError{Field: "data.equilibrium_file", Message: "is required"})
		}
	}
	errs = append(errs, validateDuration("data.fetch_timeout", d.FetchTimeout)...)

	return errs
}

func validateDashboard(d *DashboardConfig) ValidationErrors {
	var errs ValidationErrors

	zone, ok := domain.ZoneIDFromString(d.InitialZone)
	if !ok || !zone.Selectable() {
		errs = append(errs, ValidationError{
			Field:   "dashboard.initial_zone",
			Message: "must be one of: Standard, Premium",
		})
	}
	if d.InitialDay < 0 {
		errs = append(errs, ValidationError{
			Field:   "dashboard.initial_day",
			Message: "must be non-negative",
		})
	}
	for _, p := range d.InitialProfiles {
		if _, ok := domain.ProfileIDFromString(p); !ok {
			errs = append(errs, ValidationError{
				Field:   "dashboard.initial_profiles",
				Message: fmt.Sprintf("unknown profile %q", p),
			})
		}
	}

	errs = append(errs, validateDuration("dashboard.playback_interval", d.PlaybackInterval)...)
	errs = append(errs, validateDuration("dashboard.reload_poll_interval", d.ReloadPollInterval)...)

	if d.ReloadCron != "" {
		if _, err := scheduler.ParseCron(d.ReloadCron); err != nil {
			errs = append(errs, ValidationError{
				Field:   "dashboard.reload_cron",
				Message: err.Error(),
			})
		}
	}

	return errs
}

func validateDatabase(db *DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if db.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "database.host",
			Message: "is required",
		})
	}
	if db.Port <= 0 || db.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "database.port",
			Message: "must be a valid port number (1-65535)",
		})
	}
	if db.User == "" {
		errs = append(errs, ValidationError{
			Field:   "database.user",
			Message: "is required",
		})
	}
	if db.Name == "" {
		errs = append(errs, ValidationError{
			Field:   "database.name",
			Message: "is required",
		})
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if !validSSLModes[db.SSLMode] {
		errs = append(errs, ValidationError{
			Field:   "database.sslmode",
			Message: "must be one of: disable, require, verify-ca, verify-full",
		})
	}

	if db.MaxConnections <= 0 {
		errs = append(errs, ValidationError{
			Field:   "database.max_connections",
			Message: "must be greater than 0",
		})
	}
	if db.MaxIdleConnections < 0 {
		errs = append(errs, ValidationError{
			Field:   "database.max_idle_connections",
			Message: "must be non-negative",
		})
	}
	if db.MaxIdleConnections > db.MaxConnections {
		errs = append(errs, ValidationError{
			Field:   "database.max_idle_connections",
			Message: "must not exceed max_connections",
		})
	}
	errs = append(errs, validateDuration("database.conn_max_lifetime", db.ConnMaxLifetime)...)

	return errs
}

func validateRabbitMQ(mq *RabbitMQConfig) ValidationErrors {
	var errs ValidationErrors

	if mq.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "rabbitmq.url",
			Message: "is required",
		})
	} else if !strings.HasPrefix(mq.URL, "amqp://") && !strings.HasPrefix(mq.URL, "amqps://") {
		errs = append(errs, ValidationError{
			Field:   "rabbitmq.url",
			Message: "must start with amqp:// or amqps://",
		})
	}

	if mq.Exchange == "" {
		errs = append(errs, ValidationError{
			Field:   "rabbitmq.exchange",
			Message: "is required",
		})
	}
	if mq.Queue == "" {
		errs = append(errs, ValidationError{
			Field:   "rabbitmq.queue",
			Message: "is required",
		})
	}

	if mq.PrefetchCount <= 0 {
		errs = append(errs, ValidationError{
			Field:   "rabbitmq.prefetch_count",
			Message: "must be greater than 0",
		})
	}
	errs = append(errs, validateDuration("rabbitmq.reconnect_delay", mq.ReconnectDelay)...)
	errs = append(errs, validateDuration("rabbitmq.max_reconnect_wait", mq.MaxReconnectWait)...)

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[l.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validFormats[l.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be one of: json, console",
		})
	}

	return errs
}

func validateTracing(t *TracingConfig) ValidationErrors {
	if !t.Enabled() {
		return nil
	}
	var errs ValidationErrors
	if u, err := url.Parse(t.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{Field: "tracing.endpoint", Message: "must be an absolute URL"})
	}
	if t.ServiceName == "" {
		errs = append(errs, ValidationError{Field: "tracing.service_name", Message: "is required"})
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, ValidationError{Field: "tracing.sample_ratio", Message: "must be between 0 and 1"})
	}
	return errs
}

// validateDuration accepts an empty value or a positive Go duration.
func validateDuration(field, value string) ValidationErrors {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return ValidationErrors{{Field: field, Message: "must be a positive duration such as 1s or 500ms"}}
	}
	return nil
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve ValidationError
	var ves ValidationErrors
	return errors.As(err, &ve) || errors.As(err, &ves)
}
