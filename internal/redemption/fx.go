package redemption

import (
	"go.uber.org/fx"

	"github.com/andinolabs/canje/internal/redemption/repository"
	"github.com/andinolabs/canje/internal/redemption/service"
)

var Module = fx.Module("redemption.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
