package catalog

import (
	"go.uber.org/fx"

	"github.com/andinolabs/canje/internal/catalog/repository"
	"github.com/andinolabs/canje/internal/catalog/service"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
