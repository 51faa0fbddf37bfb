package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/tabwrite/internal/config"
	"github.com/roach88/tabwrite/internal/dispatch"
	"github.com/roach88/tabwrite/internal/engine"
	"github.com/roach88/tabwrite/internal/store"
)

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// openEngine opens the configured database and builds an engine whose
// clock resumes after the last logged update. The caller closes the store
// after stopping the engine.
func openEngine(ctx context.Context, cfg config.Config, sessions engine.SessionGenerator) (*engine.Engine, *store.Store, error) {
	policy, err := dispatch.ParseDefectPolicy(cfg.DefectPolicy)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	clock, err := engine.ResumeClock(ctx, st)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	eng := engine.New(st, sessions,
		engine.WithClock(clock),
		engine.WithDefectPolicy(policy),
		engine.WithRetryAttempts(cfg.RetryAttempts),
	)
	slog.Debug("engine ready",
		"db", cfg.Database,
		"seq", clock.Current(),
		"defect_policy", string(policy),
	)
	return eng, st, nil
}

// ensureTables registers every configured table. Existing tables with the
// same columns are left alone.
func ensureTables(ctx context.Context, st *store.Store, tables []config.TableConfig) error {
	for _, t := range tables {
		if err := st.CreateTable(ctx, t.Name, t.Columns); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
	}
	return nil
}
