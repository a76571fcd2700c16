package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/andinolabs/canje/internal/catalog/domain"
	"github.com/andinolabs/canje/internal/catalog/repository"
	"github.com/andinolabs/canje/internal/clock"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&catalogdomain.Partner{},
		&catalogdomain.Reward{},
		&catalogdomain.PartnerAPIKey{},
	); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock) catalogdomain.Service {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})
}

func createPartner(t *testing.T, svc catalogdomain.Service, name string) *catalogdomain.Partner {
	t.Helper()
	partner, err := svc.CreatePartner(context.Background(), &catalogdomain.Partner{
		Name:     name,
		Category: "restaurant",
	})
	require.NoError(t, err)
	return partner
}

func TestCreateAndGetReward(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	partner := createPartner(t, svc, "La Mar Cebichería")

	reward, err := svc.CreateReward(ctx, catalogdomain.CreateRewardRequest{
		PartnerID:   partner.ID,
		Name:        "Ceviche Dinner for Two",
		Description: "Tasting menu with a pisco sour each.",
		PointsCost:  120,
		Stock:       5,
		Tags:        []string{"food", "featured"},
	})
	require.NoError(t, err)
	require.Equal(t, "ceviche-dinner-for-two", reward.Slug)

	got, err := svc.GetReward(ctx, reward.ID)
	require.NoError(t, err)
	require.Equal(t, reward.Name, got.Name)
	require.EqualValues(t, 5, got.Stock)
	require.Equal(t, []string{"food", "featured"}, []string(got.Tags))

	_, err = svc.GetReward(ctx, 9999)
	require.ErrorIs(t, err, catalogdomain.ErrRewardNotFound)
}

func TestCreateRewardValidation(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Now())
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	partner := createPartner(t, svc, "Museo Larco")

	_, err := svc.CreateReward(ctx, catalogdomain.CreateRewardRequest{
		PartnerID: partner.ID, Name: "", PointsCost: 10,
	})
	require.ErrorIs(t, err, catalogdomain.ErrInvalidReward)

	_, err = svc.CreateReward(ctx, catalogdomain.CreateRewardRequest{
		PartnerID: partner.ID, Name: "Pass", PointsCost: 0,
	})
	require.ErrorIs(t, err, catalogdomain.ErrInvalidReward)

	_, err = svc.CreateReward(ctx, catalogdomain.CreateRewardRequest{
		PartnerID: 12345, Name: "Pass", PointsCost: 10,
	})
	require.ErrorIs(t, err, catalogdomain.ErrPartnerNotFound)
}

func TestCheckEligibleWindow(t *testing.T) {
	db := setupTestDB(t)
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(start.Add(-24 * time.Hour))
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	partner := createPartner(t, svc, "City Tours")
	reward, err := svc.CreateReward(ctx, catalogdomain.CreateRewardRequest{
		PartnerID:  partner.ID,
		Name:       "Walking Tour",
		PointsCost: 40,
		Stock:      10,
		ValidFrom:  &start,
		ValidUntil: &end,
	})
	require.NoError(t, err)

	_, err = svc.CheckEligible(ctx, reward.ID, clk.Now())
	require.ErrorIs(t, err, catalogdomain.ErrRewardNotStarted)

	clk.Advance(48 * time.Hour)
	_, err = svc.CheckEligible(ctx, reward.ID, clk.Now())
	require.NoError(t, err)

	clk.Advance(60 * 24 * time.Hour)
	_, err = svc.CheckEligible(ctx, reward.ID, clk.Now())
	require.ErrorIs(t, err, catalogdomain.ErrRewardExpired)
}

func TestStockMovements(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Now())
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	partner := createPartner(t, svc, "Café Andino")
	reward, err := svc.CreateReward(ctx, catalogdomain.CreateRewardRequest{
		PartnerID:  partner.ID,
		Name:       "Coffee and Cake Combo",
		PointsCost: 15,
		Stock:      2,
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.DecrementStockTx(ctx, tx, reward.ID)
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.DecrementStockTx(ctx, tx, reward.ID)
	})
	require.NoError(t, err)

	// Sold out: the guarded update touches no rows.
	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.DecrementStockTx(ctx, tx, reward.ID)
	})
	require.ErrorIs(t, err, catalogdomain.ErrOutOfStock)

	_, err = svc.CheckEligible(ctx, reward.ID, clk.Now())
	require.ErrorIs(t, err, catalogdomain.ErrOutOfStock)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.IncrementStockTx(ctx, tx, reward.ID)
	})
	require.NoError(t, err)

	got, err := svc.GetReward(ctx, reward.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.Stock)
}

func TestListRewardsFilter(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Now())
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	partner := createPartner(t, svc, "Museo Larco")
	other := createPartner(t, svc, "Café Andino")

	_, err := svc.CreateReward(ctx, catalogdomain.CreateRewardRequest{
		PartnerID: partner.ID, Name: "Museum Pass", PointsCost: 50, Stock: 3, Tags: []string{"culture"},
	})
	require.NoError(t, err)
	_, err = svc.CreateReward(ctx, catalogdomain.CreateRewardRequest{
		PartnerID: other.ID, Name: "Espresso", PointsCost: 5, Stock: 0, Tags: []string{"food"},
	})
	require.NoError(t, err)

	all, err := svc.ListRewards(ctx, catalogdomain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Cheapest first.
	require.Equal(t, "espresso", all[0].Slug)

	inStock, err := svc.ListRewards(ctx, catalogdomain.ListFilter{InStock: true})
	require.NoError(t, err)
	require.Len(t, inStock, 1)
	require.Equal(t, "museum-pass", inStock[0].Slug)

	byPartner, err := svc.ListRewards(ctx, catalogdomain.ListFilter{PartnerID: other.ID})
	require.NoError(t, err)
	require.Len(t, byPartner, 1)

	byTag, err := svc.ListRewards(ctx, catalogdomain.ListFilter{Tag: "culture"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	require.Equal(t, "museum-pass", byTag[0].Slug)
}

func TestAPIKeyLifecycle(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	partner := createPartner(t, svc, "City Tours")

	expiry := clk.Now().Add(24 * time.Hour)
	plain, key, err := svc.IssueAPIKey(ctx, partner.ID, []string{catalogdomain.ScopePresent, catalogdomain.ScopeConsume}, &expiry)
	require.NoError(t, err)
	require.NotEmpty(t, plain)
	require.NotContains(t, key.KeyHash, plain)

	authed, err := svc.AuthenticateAPIKey(ctx, plain, clk.Now())
	require.NoError(t, err)
	require.Equal(t, partner.ID, authed.PartnerID)
	require.True(t, authed.HasScope(catalogdomain.ScopePresent))
	require.False(t, authed.HasScope("admin"))

	_, err = svc.AuthenticateAPIKey(ctx, "pk_BOGUS_deadbeef", clk.Now())
	require.ErrorIs(t, err, catalogdomain.ErrPartnerNotFound)

	clk.Advance(48 * time.Hour)
	_, err = svc.AuthenticateAPIKey(ctx, plain, clk.Now())
	require.ErrorIs(t, err, catalogdomain.ErrPartnerNotFound)
}
