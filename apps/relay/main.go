package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sitecraft/internal/cache"
	"github.com/smallbiznis/sitecraft/internal/clock"
	"github.com/smallbiznis/sitecraft/internal/config"
	"github.com/smallbiznis/sitecraft/internal/migration"
	"github.com/smallbiznis/sitecraft/internal/observability"
	"github.com/smallbiznis/sitecraft/internal/outbox"
	"github.com/smallbiznis/sitecraft/internal/ratelimit"
	"github.com/smallbiznis/sitecraft/pkg/db"
	"go.uber.org/fx"
)

// relay drains payment_outbox without serving HTTP. Several relays may run
// next to the API; row locks keep a message from being claimed twice.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Redis is optional; the locker only matters on dialects without SKIP LOCKED.
		fx.Provide(cache.NewRedisClient),
		fx.Provide(ratelimit.NewLocker),

		// No server module!
		outbox.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	node := int64(2)
	if raw := os.Getenv("SNOWFLAKE_NODE"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		node = parsed
	}
	return snowflake.NewNode(node)
}
