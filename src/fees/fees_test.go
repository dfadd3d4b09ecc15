package fees

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestRoundMoney(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"10.005", "10.01"},
		{"10.004", "10.00"},
		{"10.995", "11.00"},
		{"0.001", "0.00"},
		{"54.25", "54.25"},
	}

	for _, tc := range cases {
		got := RoundMoney(decimal.RequireFromString(tc.in))
		if got.String() != decimal.RequireFromString(tc.want).String() {
			t.Fatalf("RoundMoney(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestRoundRate(t *testing.T) {
	got := RoundRate(decimal.RequireFromString("1.0866666"))
	if !got.Equal(decimal.RequireFromString("1.086667")) {
		t.Fatalf("RoundRate(1.0866666) = %s, want 1.086667", got)
	}
}

func TestBuyerFeeUsesScheduleRate(t *testing.T) {
	mockDB, mock := newMockDB(t)
	svc := (&Service{}).WithDB(mockDB)

	rows := sqlmock.NewRows([]string{"id", "currency", "transaction_type", "percentage", "active"}).
		AddRow(uint(1), "EUR", "trade_buy", "0.250000", true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "fee_schedules"`)).
		WillReturnRows(rows)

	fee, err := svc.BuyerFee(context.Background(), "EUR", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("unexpected error computing buyer fee: %v", err)
	}

	// 0.25% of 100.00
	if !fee.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("expected fee 0.25, got %s", fee)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestSellerFeeZeroWhenUnscheduled(t *testing.T) {
	mockDB, mock := newMockDB(t)
	svc := (&Service{}).WithDB(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "fee_schedules"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	fee, err := svc.SellerFee(context.Background(), "JPY", decimal.NewFromInt(500))
	if err != nil {
		t.Fatalf("unexpected error computing seller fee: %v", err)
	}

	if !fee.IsZero() {
		t.Fatalf("expected zero fee without schedule, got %s", fee)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
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
