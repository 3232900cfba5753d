package app

import (
	"context"

	"github.com/fiffu/feedwatch/config"
	"github.com/fiffu/feedwatch/lib/state"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewPersister opens the configured state backend. The sqlite database is
// closed when the app stops.
func NewPersister(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (state.Persister, error) {
	switch cfg.State.Backend {
	case config.BackendJSON:
		log.Sugar().Infow("Using JSON state file", "path", cfg.State.Path)
		return state.NewJSONPersister(cfg.State.Path), nil

	default:
		p, err := state.NewSQLitePersister(cfg.State.Path)
		if err != nil {
			log.Sugar().Errorw("Failed to open database", "path", cfg.State.Path, "err", err)
			return nil, err
		}
		log.Sugar().Infow("Database started", "path", cfg.State.Path)
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return p.Close()
			},
		})
		return p, nil
	}
}

func NewStore(lc fx.Lifecycle, log *zap.Logger, persister state.Persister) (*state.Store, error) {
	return state.NewStore(context.Background(), log, persister)
}
