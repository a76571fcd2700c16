// Package seed fills an empty catalog with a small set of demo partners and
// rewards so a fresh install has something to redeem.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"gorm.io/gorm"

	catalogdomain "github.com/andinolabs/canje/internal/catalog/domain"
)

type demoReward struct {
	slug        string
	name        string
	description string
	pointsCost  int64
	stock       int64
	tags        []string
}

type demoPartner struct {
	slug     string
	name     string
	category string
	address  string
	rewards  []demoReward
}

var demoCatalog = []demoPartner{
	{
		slug:     "la-mar-cebicheria",
		name:     "La Mar Cebichería",
		category: "restaurant",
		address:  "Av. La Mar 770, Miraflores",
		rewards: []demoReward{
			{
				slug:        "ceviche-dinner-for-two",
				name:        "Ceviche Dinner for Two",
				description: "Tasting menu with a pisco sour each.",
				pointsCost:  120,
				stock:       10,
				tags:        []string{"food", "featured"},
			},
		},
	},
	{
		slug:     "museo-larco",
		name:     "Museo Larco",
		category: "museum",
		address:  "Av. Simón Bolívar 1515, Pueblo Libre",
		rewards: []demoReward{
			{
				slug:        "museum-day-pass",
				name:        "Museum Day Pass",
				description: "Full-day entry including the permanent collection.",
				pointsCost:  50,
				stock:       25,
				tags:        []string{"culture"},
			},
		},
	},
	{
		slug:     "andes-city-tours",
		name:     "Andes City Tours",
		category: "tour",
		address:  "Plaza Mayor, Centro Histórico",
		rewards: []demoReward{
			{
				slug:        "historic-walking-tour",
				name:        "Historic Walking Tour",
				description: "Two-hour guided walk through the old town.",
				pointsCost:  40,
				stock:       15,
				tags:        []string{"tour", "outdoor"},
			},
		},
	},
	{
		slug:     "cafe-andino",
		name:     "Café Andino",
		category: "cafe",
		address:  "Jr. Constitución 302",
		rewards: []demoReward{
			{
				slug:        "coffee-and-cake-combo",
				name:        "Coffee and Cake Combo",
				description: "Any espresso drink with a slice of the day.",
				pointsCost:  15,
				stock:       40,
				tags:        []string{"food"},
			},
		},
	},
}

// EnsureDemoCatalog inserts the demo partners and rewards. Existing rows are
// left untouched, so it is safe to run on every startup.
func EnsureDemoCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, p := range demoCatalog {
			partnerID, err := ensurePartnerTx(ctx, tx, node, p, now)
			if err != nil {
				return err
			}
			for _, r := range p.rewards {
				if err := ensureRewardTx(ctx, tx, node, partnerID, r, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func ensurePartnerTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, p demoPartner, now time.Time) (snowflake.ID, error) {
	var existing []catalogdomain.Partner
	if err := tx.WithContext(ctx).
		Raw(`SELECT id FROM partners WHERE slug = ?`, p.slug).
		Scan(&existing).Error; err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return existing[0].ID, nil
	}

	id := node.Generate()
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO partners (id, slug, name, category, address, latitude, longitude, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		id, p.slug, p.name, p.category, p.address, now, now,
	).Error
	return id, err
}

func ensureRewardTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, partnerID snowflake.ID, r demoReward, now time.Time) error {
	var existing []catalogdomain.Reward
	if err := tx.WithContext(ctx).
		Raw(`SELECT id FROM rewards WHERE slug = ?`, r.slug).
		Scan(&existing).Error; err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	return tx.WithContext(ctx).Exec(
		`INSERT INTO rewards (id, partner_id, slug, name, description, points_cost, stock, tags,
		 image_url, valid_from, valid_until, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', NULL, NULL, NULL, ?, ?)`,
		node.Generate(), partnerID, r.slug, r.name, r.description, r.pointsCost, r.stock,
		pq.StringArray(r.tags), now, now,
	).Error
}
