package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"walletexchange/src/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestOrderRepositorySearch(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &OrderRepository{db: mockDB}

	createdAt := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	orders := []model.Order{
		{ID: 1, UserID: 1, Side: model.OrderSideBuy, BaseCurrency: "EUR", QuoteCurrency: "USD", Status: model.OrderStatusPending, CreatedAt: createdAt, UpdatedAt: createdAt},
		{ID: 2, UserID: 1, Side: model.OrderSideSell, BaseCurrency: "GBP", QuoteCurrency: "USD", Status: model.OrderStatusFilled, CreatedAt: createdAt.Add(24 * time.Hour), UpdatedAt: createdAt.Add(24 * time.Hour)},
		{ID: 3, UserID: 2, Side: model.OrderSideBuy, BaseCurrency: "EUR", QuoteCurrency: "USD", Status: model.OrderStatusPending, CreatedAt: createdAt.Add(48 * time.Hour), UpdatedAt: createdAt.Add(48 * time.Hour)},
	}

	orderRows := func(returned ...model.Order) *sqlmock.Rows {
		rows := sqlmock.NewRows([]string{"id", "user_id", "side", "base_currency", "quote_currency", "status", "created_at", "updated_at"})
		for _, order := range returned {
			rows.AddRow(order.ID, order.UserID, order.Side, order.BaseCurrency, order.QuoteCurrency, order.Status, order.CreatedAt, order.UpdatedAt)
		}
		return rows
	}

	t.Run("filters by user", func(t *testing.T) {
		mockRows := orderRows(orders[1], orders[0])
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE user_id = $1 ORDER BY created_at DESC, id DESC`)).
			WithArgs(uint(1)).
			WillReturnRows(mockRows)

		results, err := repo.Search(context.Background(), OrderSearchOptions{UserID: 1})
		if err != nil {
			t.Fatalf("unexpected error searching orders: %v", err)
		}

		if len(results) != 2 {
			t.Fatalf("expected 2 orders for user 1, got %d", len(results))
		}

		if results[0].BaseCurrency != "GBP" || results[1].BaseCurrency != "EUR" {
			t.Fatalf("orders not returned in expected order: %+v", results)
		}
	})

	t.Run("filters by user and status", func(t *testing.T) {
		mockRows := orderRows(orders[0])
		status := model.OrderStatusPending
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC, id DESC`)).
			WithArgs(uint(1), status).
			WillReturnRows(mockRows)

		results, err := repo.Search(context.Background(), OrderSearchOptions{UserID: 1, Status: &status})
		if err != nil {
			t.Fatalf("unexpected error searching orders: %v", err)
		}

		if len(results) != 1 {
			t.Fatalf("expected 1 pending order for user 1, got %d", len(results))
		}
	})

	t.Run("filters by pair", func(t *testing.T) {
		mockRows := orderRows(orders[0])
		base := "EUR"
		quote := "USD"
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE user_id = $1 AND base_currency = $2 AND quote_currency = $3 ORDER BY created_at DESC, id DESC`)).
			WithArgs(uint(1), base, quote).
			WillReturnRows(mockRows)

		results, err := repo.Search(context.Background(), OrderSearchOptions{UserID: 1, BaseCurrency: &base, QuoteCurrency: &quote})
		if err != nil {
			t.Fatalf("unexpected error searching orders: %v", err)
		}

		if len(results) != 1 {
			t.Fatalf("expected 1 EUR/USD order for user 1, got %d", len(results))
		}
	})

	t.Run("filters by created window", func(t *testing.T) {
		mockRows := orderRows(orders[1])
		from := createdAt.Add(12 * time.Hour)
		to := createdAt.Add(36 * time.Hour)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3 ORDER BY created_at DESC, id DESC`)).
			WithArgs(uint(1), from, to).
			WillReturnRows(mockRows)

		results, err := repo.Search(context.Background(), OrderSearchOptions{UserID: 1, CreatedAfter: &from, CreatedBefore: &to})
		if err != nil {
			t.Fatalf("unexpected error searching orders: %v", err)
		}

		if len(results) != 1 {
			t.Fatalf("expected 1 order in window, got %d", len(results))
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestOrderRepositoryFindByIDAndUserNotFound(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &OrderRepository{db: mockDB}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE id = $1 AND user_id = $2`)).
		WithArgs(uint(7), uint(1), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	order, err := repo.FindByIDAndUser(context.Background(), 7, 1)
	if err != nil {
		t.Fatalf("expected no error for missing order, got %v", err)
	}
	if order != nil {
		t.Fatalf("expected nil order for missing row, got %+v", order)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestOrderRepositoryFindBestMaker(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &OrderRepository{db: mockDB}

	t.Run("best sell maker is cheapest first", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "user_id", "side", "type", "price", "status"}).
			AddRow(uint(11), uint(3), model.OrderSideSell, model.OrderTypeLimit, "1.085000", model.OrderStatusPending)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE (base_currency = $1 AND quote_currency = $2) AND (side = $3 AND type = $4) AND status IN ($5,$6) AND price <= $7 ORDER BY price ASC, created_at ASC, id ASC`)).
			WillReturnRows(rows)

		limit := mustDecimal(t, "1.090000")
		maker, err := repo.FindBestMaker(context.Background(), "EUR", "USD", model.OrderSideSell, &limit)
		if err != nil {
			t.Fatalf("unexpected error fetching best maker: %v", err)
		}
		if maker == nil || maker.ID != 11 {
			t.Fatalf("expected maker 11, got %+v", maker)
		}
	})

	t.Run("no qualifying maker returns nil", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE (base_currency = $1 AND quote_currency = $2) AND (side = $3 AND type = $4) AND status IN ($5,$6) ORDER BY price DESC, created_at ASC, id ASC`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		maker, err := repo.FindBestMaker(context.Background(), "EUR", "USD", model.OrderSideBuy, nil)
		if err != nil {
			t.Fatalf("expected no error for empty book, got %v", err)
		}
		if maker != nil {
			t.Fatalf("expected nil maker for empty book, got %+v", maker)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func mustDecimal(t *testing.T, val string) decimal.Decimal {
	t.Helper()
	parsed, err := decimal.NewFromString(val)
	if err != nil {
		t.Fatalf("failed to parse decimal %q: %v", val, err)
	}
	return parsed
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
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

	return gdb, mock
}
