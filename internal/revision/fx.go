package revision

import (
	"github.com/smallbiznis/pipetrade/internal/revision/service"
	"go.uber.org/fx"
)

var Module = fx.Module("revision.service",
	fx.Provide(service.NewService),
)
