package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "time/tzdata" // Asia/Bangkok on hosts without a zoneinfo database
)

// Validate checks every section and reports all problems at once. It
// expects Defaults to have run.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}
	if _, err := cfg.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if f := cfg.Log.Format; f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("config: log.format must be text or json, got %q", f))
	}

	errs = append(errs, cfg.Gateway.Validate())
	errs = append(errs, validateDebounce(cfg.Debounce)...)
	errs = append(errs, validatePipeline(cfg.Pipeline)...)
	errs = append(errs, cfg.LINE.Validate())
	errs = append(errs, cfg.OpenAI.Validate())
	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, cfg.Search.Validate())
	errs = append(errs, validateStorage(cfg.Storage)...)
	errs = append(errs, cfg.Telemetry.Validate())

	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: invalid log.level %q", l.Level)
	}
	return level, nil
}

// Location loads Timezone.
func (p PipelineConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: pipeline.timezone: %w", err)
	}
	return loc, nil
}

func validateDebounce(d DebounceConfig) []error {
	var errs []error
	for name, v := range map[string]time.Duration{
		"window":      d.Window,
		"run_timeout": d.RunTimeout,
		"sweep_grace": d.SweepGrace,
		"max_idle":    d.MaxIdle,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("config: debounce.%s must be non-negative, got %s", name, v))
		}
	}
	if d.Workers < 0 {
		errs = append(errs, fmt.Errorf("config: debounce.workers must be non-negative, got %d", d.Workers))
	}
	if d.InboxSize < 0 {
		errs = append(errs, fmt.Errorf("config: debounce.inbox_size must be non-negative, got %d", d.InboxSize))
	}
	return errs
}

func validatePipeline(p PipelineConfig) []error {
	var errs []error
	if _, err := p.Location(); err != nil {
		errs = append(errs, err)
	}
	if p.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("config: pipeline.history_limit must be non-negative, got %d", p.HistoryLimit))
	}
	if p.MaxHistoryChars < 0 {
		errs = append(errs, fmt.Errorf("config: pipeline.max_history_chars must be non-negative, got %d", p.MaxHistoryChars))
	}
	for name, r := range map[string]RetrievalConfig{"service": p.Service, "product": p.Product, "more": p.More} {
		if r.TopK < 0 || r.Skip < 0 {
			errs = append(errs, fmt.Errorf("config: pipeline.%s: top_k and skip must be non-negative", name))
		}
	}

	seen := make(map[string]bool, len(p.FAQ))
	for i, e := range p.FAQ {
		q := strings.TrimSpace(e.Question)
		switch {
		case q == "":
			errs = append(errs, fmt.Errorf("config: pipeline.faq[%d]: question is required", i))
		case seen[q]:
			errs = append(errs, fmt.Errorf("config: pipeline.faq[%d]: duplicate question %q", i, q))
		case e.Answer == "":
			errs = append(errs, fmt.Errorf("config: pipeline.faq[%d]: answer is required", i))
		}
		seen[q] = true
	}
	return errs
}

func validateProviders(p ProvidersConfig) []error {
	var errs []error
	if p.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("config: providers.max_failures must be non-negative, got %d", p.MaxFailures))
	}
	if p.MaxBackoff > 0 && p.InitialBackoff > p.MaxBackoff {
		errs = append(errs, errors.New("config: providers.initial_backoff exceeds max_backoff"))
	}
	if p.Fallback != nil {
		if err := p.Fallback.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: providers.fallback: %w", err))
		}
	}
	return errs
}

func validateStorage(s StorageConfig) []error {
	switch s.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite:
		return []error{s.SQLite.Validate()}
	case DriverPostgres:
		return []error{s.Postgres.Validate()}
	default:
		return []error{fmt.Errorf("config: storage.driver must be memory, sqlite or postgres, got %q", s.Driver)}
	}
}
