package document

import (
	"github.com/smallbiznis/pipetrade/internal/document/repository"
	"github.com/smallbiznis/pipetrade/internal/document/service"
	"go.uber.org/fx"
)

var Module = fx.Module("document.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
