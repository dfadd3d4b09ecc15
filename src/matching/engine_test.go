package matching

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"walletexchange/src/exchange"
	"walletexchange/src/fees"
	"walletexchange/src/ledger"
	"walletexchange/src/locks"
	"walletexchange/src/model"
	"walletexchange/src/repository"
	"walletexchange/src/settlement"
)

// decArg matches a query argument against the same decimal value,
// since sqlmock's default string comparison treats the numerically
// equal "0.10" and "0.1" as a mismatch.
type decArg string

func (d decArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		b, okb := v.([]byte)
		if !okb {
			return false
		}
		s = string(b)
	}
	actual, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return decimal.RequireFromString(string(d)).Equal(actual)
}

func newPlanEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	engine := &Engine{
		db:     gdb,
		orders: repository.NewOrderRepository().WithDB(gdb),
	}
	return engine, mock
}

func makerRows(makers ...model.Order) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "user_id", "side", "type", "price", "quantity", "remaining_quantity", "status"})
	for _, m := range makers {
		rows.AddRow(m.ID, m.UserID, m.Side, m.Type, m.Price.String(), m.Quantity.String(), m.RemainingQuantity.String(), m.Status)
	}
	return rows
}

func TestPlanMarketPartialFillAgainstDeeperMaker(t *testing.T) {
	engine, mock := newPlanEngine(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WillReturnRows(makerRows(model.Order{
			ID:                9,
			UserID:            3,
			Side:              model.OrderSideSell,
			Type:              model.OrderTypeLimit,
			Price:             decimal.RequireFromString("10.000000"),
			Quantity:          decimal.NewFromInt(100),
			RemainingQuantity: decimal.NewFromInt(100),
			Status:            model.OrderStatusPending,
		}))

	plan, err := engine.PlanMarket(
		context.Background(),
		model.OrderSideBuy,
		"EUR", "USD",
		decimal.NewFromInt(50),
		nil,
	)
	if err != nil {
		t.Fatalf("unexpected error planning market buy: %v", err)
	}

	if len(plan.Fills) != 1 {
		t.Fatalf("expected 1 planned fill, got %d", len(plan.Fills))
	}
	if !plan.Fills[0].Quantity.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected fill quantity 50, got %s", plan.Fills[0].Quantity)
	}
	if !plan.Fills[0].Price.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("expected maker price 10, got %s", plan.Fills[0].Price)
	}
	if !plan.QuoteTotal.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected quote total 500, got %s", plan.QuoteTotal)
	}
	if !plan.UnmatchedQty.IsZero() {
		t.Fatalf("expected no unmatched quantity, got %s", plan.UnmatchedQty)
	}
}

func TestPlanMarketWalksBookBestPriceFirst(t *testing.T) {
	engine, mock := newPlanEngine(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WillReturnRows(makerRows(
			model.Order{
				ID: 1, UserID: 3, Side: model.OrderSideSell, Type: model.OrderTypeLimit,
				Price:    decimal.RequireFromString("1.080000"),
				Quantity: decimal.NewFromInt(30), RemainingQuantity: decimal.NewFromInt(30),
				Status: model.OrderStatusPending,
			},
			model.Order{
				ID: 2, UserID: 4, Side: model.OrderSideSell, Type: model.OrderTypeLimit,
				Price:    decimal.RequireFromString("1.100000"),
				Quantity: decimal.NewFromInt(100), RemainingQuantity: decimal.NewFromInt(100),
				Status: model.OrderStatusPending,
			},
		))

	plan, err := engine.PlanMarket(
		context.Background(),
		model.OrderSideBuy,
		"EUR", "USD",
		decimal.NewFromInt(50),
		nil,
	)
	if err != nil {
		t.Fatalf("unexpected error planning market buy: %v", err)
	}

	if len(plan.Fills) != 2 {
		t.Fatalf("expected 2 planned fills, got %d", len(plan.Fills))
	}
	if plan.Fills[0].MakerID != 1 || plan.Fills[1].MakerID != 2 {
		t.Fatalf("fills not planned best price first: %+v", plan.Fills)
	}
	if !plan.Fills[1].Quantity.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected 20 from second maker, got %s", plan.Fills[1].Quantity)
	}
	// 30*1.08 + 20*1.10 = 54.40
	if !plan.QuoteTotal.Equal(decimal.RequireFromString("54.40")) {
		t.Fatalf("expected quote total 54.40, got %s", plan.QuoteTotal)
	}
	if !plan.TopOfBook.Equal(decimal.RequireFromString("1.08")) {
		t.Fatalf("expected top of book 1.08, got %s", plan.TopOfBook)
	}
}

func TestPlanMarketEmptyBook(t *testing.T) {
	engine, mock := newPlanEngine(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WillReturnRows(makerRows())

	_, err := engine.PlanMarket(
		context.Background(),
		model.OrderSideSell,
		"EUR", "USD",
		decimal.NewFromInt(10),
		nil,
	)
	if !errors.Is(err, exchange.ErrLiquidityUnavailable) {
		t.Fatalf("expected ErrLiquidityUnavailable, got %v", err)
	}
}

func TestPlanMarketSlippageBreach(t *testing.T) {
	engine, mock := newPlanEngine(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WillReturnRows(makerRows(
			model.Order{
				ID: 1, UserID: 3, Side: model.OrderSideSell, Type: model.OrderTypeLimit,
				Price:    decimal.RequireFromString("1.000000"),
				Quantity: decimal.NewFromInt(10), RemainingQuantity: decimal.NewFromInt(10),
				Status: model.OrderStatusPending,
			},
			model.Order{
				ID: 2, UserID: 4, Side: model.OrderSideSell, Type: model.OrderTypeLimit,
				Price:    decimal.RequireFromString("2.000000"),
				Quantity: decimal.NewFromInt(100), RemainingQuantity: decimal.NewFromInt(100),
				Status: model.OrderStatusPending,
			},
		))

	limit := decimal.RequireFromString("0.01")
	_, err := engine.PlanMarket(
		context.Background(),
		model.OrderSideBuy,
		"EUR", "USD",
		decimal.NewFromInt(60),
		&limit,
	)
	if !errors.Is(err, exchange.ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}
}

func TestApplyFill(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("partial fill", func(t *testing.T) {
		order := &model.Order{
			Quantity:          decimal.NewFromInt(100),
			RemainingQuantity: decimal.NewFromInt(100),
			FilledQuantity:    decimal.Zero,
			AverageFillPrice:  decimal.Zero,
			Status:            model.OrderStatusPending,
		}

		applyFill(order, decimal.RequireFromString("10"), decimal.NewFromInt(50), now)

		if order.Status != model.OrderStatusPartiallyFilled {
			t.Fatalf("expected partially_filled, got %s", order.Status)
		}
		if !order.RemainingQuantity.Equal(decimal.NewFromInt(50)) {
			t.Fatalf("expected remaining 50, got %s", order.RemainingQuantity)
		}
		if !order.AverageFillPrice.Equal(decimal.RequireFromString("10")) {
			t.Fatalf("expected average 10, got %s", order.AverageFillPrice)
		}
		if order.FilledAt != nil {
			t.Fatal("partial fill must not set filled_at")
		}
	})

	t.Run("completing fill averages across prices", func(t *testing.T) {
		order := &model.Order{
			Quantity:          decimal.NewFromInt(100),
			RemainingQuantity: decimal.NewFromInt(50),
			FilledQuantity:    decimal.NewFromInt(50),
			AverageFillPrice:  decimal.RequireFromString("10"),
			Status:            model.OrderStatusPartiallyFilled,
		}

		applyFill(order, decimal.RequireFromString("12"), decimal.NewFromInt(50), now)

		if order.Status != model.OrderStatusFilled {
			t.Fatalf("expected filled, got %s", order.Status)
		}
		if !order.RemainingQuantity.IsZero() {
			t.Fatalf("expected zero remaining, got %s", order.RemainingQuantity)
		}
		// (50*10 + 50*12) / 100 = 11
		if !order.AverageFillPrice.Equal(decimal.RequireFromString("11")) {
			t.Fatalf("expected average 11, got %s", order.AverageFillPrice)
		}
		if order.FilledAt == nil || !order.FilledAt.Equal(now) {
			t.Fatalf("expected filled_at %s, got %v", now, order.FilledAt)
		}
	})
}

func newFillEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	keys := locks.NewManager()
	l := ledger.NewLedger(keys).WithDB(gdb)

	engine := &Engine{
		db:       gdb,
		keys:     keys,
		orders:   repository.NewOrderRepository().WithDB(gdb),
		ledger:   l,
		recorder: settlement.NewRecorder(l),
		feeSvc:   fees.NewService(),
	}
	return engine, mock
}

func orderRow(o model.Order) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "side", "type", "base_currency", "quote_currency",
		"quantity", "remaining_quantity", "filled_quantity",
		"price", "average_fill_price", "status",
	}).AddRow(
		o.ID, o.UserID, o.Side, o.Type, o.BaseCurrency, o.QuoteCurrency,
		o.Quantity.String(), o.RemainingQuantity.String(), o.FilledQuantity.String(),
		o.Price.String(), o.AverageFillPrice.String(), o.Status,
	)
}

func reservationRow(id, orderID, userID uint, currency, reserved, released string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "order_id", "user_id", "currency", "reserved_amount", "released_amount", "status"}).
		AddRow(id, orderID, userID, currency, reserved, released, model.ReservationStatusActive)
}

func emptyFeeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "currency", "transaction_type", "rate", "active"})
}

func walletRow(id, userID uint, currency, available, reserved string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "currency", "available_balance", "reserved_balance"}).
		AddRow(id, userID, currency, available, reserved)
}

// The last fill of a limit buy pays with whatever the hold has left:
// nine earlier 0.10 fills at 1.05 each cost a rounded 0.11, so the
// tenth carries the 1.05 reservation's remaining 0.06 instead of 0.11.
func TestExecuteFillCapsQuoteAtRemainingHold(t *testing.T) {
	engine, mock := newFillEngine(t)

	buyer := model.Order{
		ID: 1, UserID: 2, Side: model.OrderSideBuy, Type: model.OrderTypeLimit,
		BaseCurrency: "EUR", QuoteCurrency: "USD",
		Quantity:          decimal.RequireFromString("1.00"),
		RemainingQuantity: decimal.RequireFromString("0.10"),
		FilledQuantity:    decimal.RequireFromString("0.90"),
		Price:             decimal.RequireFromString("1.05"),
		AverageFillPrice:  decimal.RequireFromString("1.05"),
		Status:            model.OrderStatusPartiallyFilled,
	}
	seller := model.Order{
		ID: 2, UserID: 3, Side: model.OrderSideSell, Type: model.OrderTypeLimit,
		BaseCurrency: "EUR", QuoteCurrency: "USD",
		Quantity:          decimal.RequireFromString("0.10"),
		RemainingQuantity: decimal.RequireFromString("0.10"),
		FilledQuantity:    decimal.RequireFromString("0"),
		Price:             decimal.RequireFromString("1.05"),
		AverageFillPrice:  decimal.RequireFromString("0"),
		Status:            model.OrderStatusPending,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE "orders"."id" = $1`)).
		WillReturnRows(orderRow(buyer))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE "orders"."id" = $1`)).
		WillReturnRows(orderRow(seller))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "fund_reservations" WHERE order_id = $1`)).
		WillReturnRows(reservationRow(11, 1, 2, "USD", "1.05", "0.99"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "fund_reservations" WHERE order_id = $1`)).
		WillReturnRows(reservationRow(12, 2, 3, "EUR", "0.10", "0"))

	// zero-rate fee lookups for buyer and seller
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "fee_schedules"`)).
		WillReturnRows(emptyFeeRows())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "fee_schedules"`)).
		WillReturnRows(emptyFeeRows())

	// trade row carries the capped 0.06, not the rounded 0.11
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "trades"`)).
		WithArgs(
			sqlmock.AnyArg(), 1, 2, 2, 3, "EUR", "USD",
			decArg("1.05"), decArg("0.10"), decArg("0.10"), decArg("0.06"), decArg("0"), decArg("0"),
			sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(77))

	mock.ExpectExec(`SAVEPOINT sp`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// seller base, buyer base, buyer quote, seller quote
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wallets"`)).
		WillReturnRows(walletRow(21, 3, "EUR", "0", "0.10"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "wallets" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wallets"`)).
		WillReturnRows(walletRow(22, 2, "EUR", "0.90", "0"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "wallets" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wallets"`)).
		WillReturnRows(walletRow(23, 2, "USD", "0", "0.06"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "wallets" SET`)).
		WithArgs(decArg("0"), decArg("0.00"), sqlmock.AnyArg(), 23).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wallets"`)).
		WillReturnRows(walletRow(24, 3, "USD", "10.00", "0"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "wallets" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "wallet_transactions"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "wallet_transactions"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// both reservations end fully released
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "fund_reservations" SET`)).
		WithArgs(decArg("1.05"), decArg("1.05"), model.ReservationStatusReleased, sqlmock.AnyArg(), 11).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "fund_reservations" SET`)).
		WithArgs(decArg("0.10"), decArg("0.10"), model.ReservationStatusReleased, sqlmock.AnyArg(), 12).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := engine.ExecuteFill(context.Background(), 1, 2, decimal.RequireFromString("0.10"))
	if err != nil {
		t.Fatalf("unexpected error executing fill: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestConsumeReservationRejectsOverRelease(t *testing.T) {
	engine := &Engine{}

	reservation := &model.FundReservation{
		ID:             9,
		OrderID:        4,
		ReservedAmount: decimal.NewFromInt(100),
		ReleasedAmount: decimal.NewFromInt(95),
		Status:         model.ReservationStatusActive,
	}

	err := engine.consumeReservation(
		context.Background(), nil, &model.Order{ID: 4}, reservation, decimal.NewFromInt(10),
	)
	if !errors.Is(err, exchange.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state transition consuming past the hold, got %v", err)
	}
}

func TestOppositeSide(t *testing.T) {
	if oppositeSide(model.OrderSideBuy) != model.OrderSideSell {
		t.Fatal("expected sell opposite buy")
	}
	if oppositeSide(model.OrderSideSell) != model.OrderSideBuy {
		t.Fatal("expected buy opposite sell")
	}
}
