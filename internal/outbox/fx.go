package outbox

import (
	"github.com/smallbiznis/sitecraft/internal/outbox/dispatcher"
	"github.com/smallbiznis/sitecraft/internal/outbox/publisher"
	"github.com/smallbiznis/sitecraft/internal/outbox/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("outbox",
	fx.Provide(repository.Provide),
	fx.Provide(publisher.New),
	dispatcher.Module,
)
