package ledger

import (
	"go.uber.org/fx"

	"github.com/andinolabs/canje/internal/ledger/repository"
	"github.com/andinolabs/canje/internal/ledger/service"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
