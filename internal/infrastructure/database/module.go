package database

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("database",
	fx.Provide(NewDatabase),
	fx.Invoke(func(lc fx.Lifecycle, db *Database) {
		if db == nil {
			return
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return db.Close()
			},
		})
	}),
)
