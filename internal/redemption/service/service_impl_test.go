package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/andinolabs/canje/internal/catalog/domain"
	catalogrepo "github.com/andinolabs/canje/internal/catalog/repository"
	catalogservice "github.com/andinolabs/canje/internal/catalog/service"
	"github.com/andinolabs/canje/internal/clock"
	ledgerdomain "github.com/andinolabs/canje/internal/ledger/domain"
	ledgerrepo "github.com/andinolabs/canje/internal/ledger/repository"
	ledgerservice "github.com/andinolabs/canje/internal/ledger/service"
	redemptiondomain "github.com/andinolabs/canje/internal/redemption/domain"
	"github.com/andinolabs/canje/internal/redemption/repository"
	voucherdomain "github.com/andinolabs/canje/internal/voucher/domain"
	voucherrepo "github.com/andinolabs/canje/internal/voucher/repository"
	voucherservice "github.com/andinolabs/canje/internal/voucher/service"
)

type engineFixture struct {
	db         *gorm.DB
	clk        *clock.FakeClock
	ledgerSvc  ledgerdomain.Service
	catalogSvc catalogdomain.Service
	voucherSvc voucherdomain.Service
	engine     redemptiondomain.Service
}

func setupEngine(t *testing.T) *engineFixture {
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
		&ledgerdomain.PointBalance{},
		&ledgerdomain.LedgerEntry{},
		&catalogdomain.Partner{},
		&catalogdomain.Reward{},
		&catalogdomain.PartnerAPIKey{},
		&voucherdomain.Voucher{},
		&redemptiondomain.RedemptionRequest{},
	); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: ledgerrepo.Provide(),
	})
	catalogSvc := catalogservice.NewService(catalogservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: catalogrepo.Provide(),
	})
	voucherSvc := voucherservice.NewService(voucherservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: voucherrepo.Provide(),
	})
	engine := NewService(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Repo:       repository.Provide(),
		LedgerSvc:  ledgerSvc,
		CatalogSvc: catalogSvc,
		VoucherSvc: voucherSvc,
	})

	return &engineFixture{
		db:         db,
		clk:        clk,
		ledgerSvc:  ledgerSvc,
		catalogSvc: catalogSvc,
		voucherSvc: voucherSvc,
		engine:     engine,
	}
}

func (f *engineFixture) credit(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := f.ledgerSvc.Credit(context.Background(), ledgerdomain.CreditRequest{
		UserID: userID,
		Amount: amount,
		Reason: ledgerdomain.ReasonAdminAdjustment,
	})
	require.NoError(t, err)
}

func (f *engineFixture) createReward(t *testing.T, cost, stock int64) *catalogdomain.Reward {
	t.Helper()
	ctx := context.Background()
	partner, err := f.catalogSvc.CreatePartner(ctx, &catalogdomain.Partner{Name: fmt.Sprintf("Partner %d", time.Now().UnixNano())})
	require.NoError(t, err)

	reward, err := f.catalogSvc.CreateReward(ctx, catalogdomain.CreateRewardRequest{
		PartnerID:  partner.ID,
		Name:       fmt.Sprintf("Reward %d", time.Now().UnixNano()),
		PointsCost: cost,
		Stock:      stock,
	})
	require.NoError(t, err)
	return reward
}

func TestRedeemHappyPath(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.credit(t, "user-1", 200)
	reward := f.createReward(t, 120, 3)

	result, err := f.engine.Redeem(ctx, redemptiondomain.RedeemRequest{
		UserID:    "user-1",
		RewardID:  reward.ID,
		RequestID: "req-1",
	})
	require.NoError(t, err)
	require.False(t, result.Replayed)
	require.Equal(t, voucherdomain.StateIssued, result.Voucher.State)
	require.EqualValues(t, 120, result.Voucher.PointsSpent)
	require.EqualValues(t, 80, result.Balance)
	require.EqualValues(t, 2, result.RewardStock)
	// 30-day default validity.
	require.Equal(t, f.clk.Now().AddDate(0, 0, 30), result.Voucher.ExpiresAt)

	balance, err := f.ledgerSvc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 80, balance.Balance)

	got, err := f.catalogSvc.GetReward(ctx, reward.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.Stock)
}

func TestRedeemIdempotentReplay(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.credit(t, "user-1", 200)
	reward := f.createReward(t, 50, 5)

	req := redemptiondomain.RedeemRequest{UserID: "user-1", RewardID: reward.ID, RequestID: "req-1"}

	first, err := f.engine.Redeem(ctx, req)
	require.NoError(t, err)

	second, err := f.engine.Redeem(ctx, req)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.Voucher.ID, second.Voucher.ID)
	require.Equal(t, first.Voucher.Code, second.Voucher.Code)

	// No second debit, no second stock take.
	balance, err := f.ledgerSvc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 150, balance.Balance)

	got, err := f.catalogSvc.GetReward(ctx, reward.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4, got.Stock)
}

func TestRedeemRequestConflict(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.credit(t, "user-1", 200)
	rewardA := f.createReward(t, 50, 5)
	rewardB := f.createReward(t, 50, 5)

	_, err := f.engine.Redeem(ctx, redemptiondomain.RedeemRequest{
		UserID: "user-1", RewardID: rewardA.ID, RequestID: "req-1",
	})
	require.NoError(t, err)

	_, err = f.engine.Redeem(ctx, redemptiondomain.RedeemRequest{
		UserID: "user-1", RewardID: rewardB.ID, RequestID: "req-1",
	})
	require.ErrorIs(t, err, redemptiondomain.ErrConflict)

	_, err = f.engine.Redeem(ctx, redemptiondomain.RedeemRequest{
		UserID: "user-2", RewardID: rewardA.ID, RequestID: "req-1",
	})
	require.ErrorIs(t, err, redemptiondomain.ErrConflict)
}

func TestRedeemInsufficientBalance(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.credit(t, "user-1", 30)
	reward := f.createReward(t, 120, 3)

	req := redemptiondomain.RedeemRequest{UserID: "user-1", RewardID: reward.ID, RequestID: "req-1"}

	_, err := f.engine.Redeem(ctx, req)
	require.ErrorIs(t, err, ledgerdomain.ErrInsufficientBalance)

	// The failure is pinned to the request ID even after a top-up.
	f.credit(t, "user-1", 500)
	_, err = f.engine.Redeem(ctx, req)
	require.ErrorIs(t, err, ledgerdomain.ErrInsufficientBalance)

	// A fresh request ID succeeds.
	result, err := f.engine.Redeem(ctx, redemptiondomain.RedeemRequest{
		UserID: "user-1", RewardID: reward.ID, RequestID: "req-2",
	})
	require.NoError(t, err)
	require.EqualValues(t, 410, result.Balance)
}

func TestRedeemOutOfStock(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.credit(t, "user-1", 500)
	reward := f.createReward(t, 50, 1)

	_, err := f.engine.Redeem(ctx, redemptiondomain.RedeemRequest{
		UserID: "user-1", RewardID: reward.ID, RequestID: "req-1",
	})
	require.NoError(t, err)

	_, err = f.engine.Redeem(ctx, redemptiondomain.RedeemRequest{
		UserID: "user-1", RewardID: reward.ID, RequestID: "req-2",
	})
	require.ErrorIs(t, err, catalogdomain.ErrOutOfStock)

	// The failed attempt spent nothing.
	balance, err := f.ledgerSvc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 450, balance.Balance)
}

func TestRedeemValidityWindow(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.credit(t, "user-1", 500)
	reward := f.createReward(t, 50, 5)

	until := f.clk.Now().Add(24 * time.Hour)
	_, err := f.catalogSvc.UpdateReward(ctx, reward.ID, catalogdomain.UpdateRewardRequest{ValidUntil: &until})
	require.NoError(t, err)

	f.clk.Advance(48 * time.Hour)
	_, err = f.engine.Redeem(ctx, redemptiondomain.RedeemRequest{
		UserID: "user-1", RewardID: reward.ID, RequestID: "req-1",
	})
	require.ErrorIs(t, err, catalogdomain.ErrRewardExpired)
}

func TestConcurrentRedemptionsNoOversell(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	reward := f.createReward(t, 10, 3)

	const callers = 50
	for i := 0; i < callers; i++ {
		f.credit(t, fmt.Sprintf("user-%d", i), 100)
	}

	var wg sync.WaitGroup
	outcomes := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.engine.Redeem(ctx, redemptiondomain.RedeemRequest{
				UserID:    fmt.Sprintf("user-%d", i),
				RewardID:  reward.ID,
				RequestID: fmt.Sprintf("req-%d", i),
			})
			outcomes <- err
		}(i)
	}
	wg.Wait()
	close(outcomes)

	var succeeded, soldOut int
	for err := range outcomes {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, catalogdomain.ErrOutOfStock):
			soldOut++
		default:
			t.Fatalf("unexpected outcome: %v", err)
		}
	}
	require.Equal(t, 3, succeeded)
	require.Equal(t, callers-3, soldOut)

	got, err := f.catalogSvc.GetReward(ctx, reward.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, got.Stock)

	vouchers := 0
	for i := 0; i < callers; i++ {
		list, err := f.voucherSvc.ListByUser(ctx, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		vouchers += len(list)
	}
	require.Equal(t, 3, vouchers)
}

func TestConcurrentRedemptionsNoOverdraft(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.credit(t, "user-1", 100)
	reward := f.createReward(t, 60, 10)

	var wg sync.WaitGroup
	outcomes := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.engine.Redeem(ctx, redemptiondomain.RedeemRequest{
				UserID:    "user-1",
				RewardID:  reward.ID,
				RequestID: fmt.Sprintf("req-%d", i),
			})
			outcomes <- err
		}(i)
	}
	wg.Wait()
	close(outcomes)

	var succeeded, short int
	for err := range outcomes {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ledgerdomain.ErrInsufficientBalance):
			short++
		default:
			t.Fatalf("unexpected outcome: %v", err)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, short)

	balance, err := f.ledgerSvc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 40, balance.Balance)
}

func TestConcurrentSameRequestID(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.credit(t, "user-1", 500)
	reward := f.createReward(t, 50, 10)

	type outcome struct {
		result *redemptiondomain.Result
		err    error
	}

	const callers = 10
	var wg sync.WaitGroup
	outcomes := make(chan outcome, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.engine.Redeem(ctx, redemptiondomain.RedeemRequest{
				UserID:    "user-1",
				RewardID:  reward.ID,
				RequestID: "req-1",
			})
			outcomes <- outcome{result: result, err: err}
		}()
	}
	wg.Wait()
	close(outcomes)

	var voucherID snowflake.ID
	for o := range outcomes {
		require.NoError(t, o.err)
		if voucherID == 0 {
			voucherID = o.result.Voucher.ID
		}
		require.Equal(t, voucherID, o.result.Voucher.ID)
	}

	// Exactly one debit regardless of how many calls raced.
	balance, err := f.ledgerSvc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 450, balance.Balance)

	got, err := f.catalogSvc.GetReward(ctx, reward.ID)
	require.NoError(t, err)
	require.EqualValues(t, 9, got.Stock)
}

func TestCancelRefundRoundTrip(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.credit(t, "user-1", 200)
	reward := f.createReward(t, 120, 3)

	result, err := f.engine.Redeem(ctx, redemptiondomain.RedeemRequest{
		UserID: "user-1", RewardID: reward.ID, RequestID: "req-1",
	})
	require.NoError(t, err)

	cancel, err := f.engine.Cancel(ctx, result.Voucher.ID)
	require.NoError(t, err)
	require.False(t, cancel.Replayed)
	require.EqualValues(t, 120, cancel.Refunded)
	require.Equal(t, voucherdomain.StateCancelled, cancel.Voucher.State)

	balance, err := f.ledgerSvc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 200, balance.Balance)

	got, err := f.catalogSvc.GetReward(ctx, reward.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, got.Stock)

	// Replay refunds nothing further.
	cancel, err = f.engine.Cancel(ctx, result.Voucher.ID)
	require.NoError(t, err)
	require.True(t, cancel.Replayed)

	balance, err = f.ledgerSvc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 200, balance.Balance)

	got, err = f.catalogSvc.GetReward(ctx, reward.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, got.Stock)
}

func TestCancelConsumedVoucherRejected(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.credit(t, "user-1", 200)
	reward := f.createReward(t, 50, 3)

	result, err := f.engine.Redeem(ctx, redemptiondomain.RedeemRequest{
		UserID: "user-1", RewardID: reward.ID, RequestID: "req-1",
	})
	require.NoError(t, err)

	_, err = f.voucherSvc.Present(ctx, result.Voucher.Code)
	require.NoError(t, err)
	_, err = f.voucherSvc.Consume(ctx, result.Voucher.Code)
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, result.Voucher.ID)
	require.ErrorIs(t, err, voucherdomain.ErrInvalidTransition)
}
