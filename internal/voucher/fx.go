package voucher

import (
	"go.uber.org/fx"

	"github.com/andinolabs/canje/internal/voucher/repository"
	"github.com/andinolabs/canje/internal/voucher/service"
)

var Module = fx.Module("voucher.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
