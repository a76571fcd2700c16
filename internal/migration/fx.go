package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	catalogdomain "github.com/andinolabs/canje/internal/catalog/domain"
	"github.com/andinolabs/canje/internal/config"
	ledgerdomain "github.com/andinolabs/canje/internal/ledger/domain"
	redemptiondomain "github.com/andinolabs/canje/internal/redemption/domain"
	"github.com/andinolabs/canje/internal/seed"
	voucherdomain "github.com/andinolabs/canje/internal/voucher/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// mysql and sqlite are dev conveniences; their schema comes
			// from the models.
			if err := conn.AutoMigrate(
				&ledgerdomain.PointBalance{},
				&ledgerdomain.LedgerEntry{},
				&catalogdomain.Partner{},
				&catalogdomain.PartnerAPIKey{},
				&catalogdomain.Reward{},
				&voucherdomain.Voucher{},
				&redemptiondomain.RedemptionRequest{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedDemoData {
			return seed.EnsureDemoCatalog(conn)
		}
		return nil
	}),
)
