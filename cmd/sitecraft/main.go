package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sitecraft/internal/clock"
	"github.com/smallbiznis/sitecraft/internal/config"
	"github.com/smallbiznis/sitecraft/internal/migration"
	"github.com/smallbiznis/sitecraft/internal/observability"
	"github.com/smallbiznis/sitecraft/internal/server"
	"github.com/smallbiznis/sitecraft/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

// RegisterSnowflake reads the node id from SNOWFLAKE_NODE so replicas never
// mint the same id.
func RegisterSnowflake() (*snowflake.Node, error) {
	node := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		node = parsed
	}
	return snowflake.NewNode(node)
}
