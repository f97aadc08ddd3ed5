// Package app is the shared entry point of the seline binary: it loads the
// configuration, builds the logger and runs the wired service.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"syscall"

	"github.com/flemzord/seline/internal/config"
	"github.com/flemzord/seline/internal/reload"
	"github.com/flemzord/seline/internal/security"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file. If
	// empty, config.ResolvePath searches the standard locations.
	ConfigPath string

	// Version, Commit and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer
}

// LoadConfig resolves, loads and validates the configuration. It returns
// the path actually used.
func LoadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.ResolvePath(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// NewRedactor returns a Redactor that knows every credential of cfg.
func NewRedactor(cfg *config.Config) *security.Redactor {
	r := security.NewRedactor()
	r.AddLiteral(secretsOf(cfg)...)
	return r
}

func secretsOf(cfg *config.Config) []string {
	out := []string{
		cfg.LINE.ChannelSecret,
		cfg.LINE.AccessToken,
		cfg.OpenAI.APIKey,
		cfg.Search.APIKey,
		cfg.Gateway.Auth.BearerToken,
		cfg.Gateway.Auth.BasicPass,
		cfg.Storage.Postgres.DSN,
	}
	if fb := cfg.Providers.Fallback; fb != nil {
		out = append(out, fb.APIKey)
	}
	return out
}

// NewLogger builds the process logger. Every record passes through the
// redactor before reaching w. The returned LevelVar adjusts the level of a
// running logger.
func NewLogger(cfg config.LogConfig, w io.Writer, redactor *security.Redactor) (*slog.Logger, *slog.LevelVar, error) {
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}
	level := new(slog.LevelVar)
	level.Set(lvl)
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	switch cfg.Format {
	case "json":
		inner = slog.NewJSONHandler(w, opts)
	case "text", "":
		inner = slog.NewTextHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("app: unknown log format %q", cfg.Format)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), level, nil
}

// Run loads the configuration, builds every component and blocks until ctx
// is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, params RunParams) error {
	cfg, path, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	redactor := NewRedactor(cfg)
	logger, level, err := NewLogger(cfg.Log, out, redactor)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("seline starting",
		"version", params.Version,
		"commit", params.Commit,
		"date", params.Date,
		"config", path,
	)

	svc, err := Build(ctx, cfg, logger, params.Version)
	if err != nil {
		return err
	}

	reloader, err := reload.New(
		reload.Config{Path: path, Signals: []os.Signal{syscall.SIGHUP}},
		func(p string) (*config.Config, error) {
			next, _, err := LoadConfig(p)
			return next, err
		},
		liveSettings(cfg, level, redactor, logger),
		logger,
	)
	if err == nil {
		err = svc.App.Add("reload", reloader)
	}
	if err != nil {
		_ = svc.App.Discard()
		return err
	}
	return svc.App.Run(ctx)
}

// liveSettings applies the parts of a reloaded configuration that take
// effect without a restart: the log level and the secrets known to the
// redactor. Every other change is reported and waits for the next start.
func liveSettings(current *config.Config, level *slog.LevelVar, redactor *security.Redactor, logger *slog.Logger) reload.Applier {
	var mu sync.Mutex
	return func(_ context.Context, next *config.Config) error {
		lvl, err := next.Log.SlogLevel()
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()

		if lvl != level.Level() {
			logger.Info("reload: log level changed", "from", level.Level().String(), "to", lvl.String())
			level.Set(lvl)
		}
		redactor.AddLiteral(secretsOf(next)...)

		if !reflect.DeepEqual(withoutLevel(current), withoutLevel(next)) {
			logger.Warn("reload: settings other than log.level require a restart")
		}
		current = next
		return nil
	}
}

func withoutLevel(cfg *config.Config) config.Config {
	c := *cfg
	c.Log.Level = ""
	return c
}
