package book

import (
	"testing"

	"github.com/shopspring/decimal"

	"walletexchange/src/model"
)

func TestAggregateLevels(t *testing.T) {
	orders := []model.Order{
		{Price: decimal.RequireFromString("1.08"), RemainingQuantity: decimal.NewFromInt(30)},
		{Price: decimal.RequireFromString("1.08"), RemainingQuantity: decimal.NewFromInt(20)},
		{Price: decimal.RequireFromString("1.09"), RemainingQuantity: decimal.NewFromInt(40)},
		{Price: decimal.RequireFromString("1.10"), RemainingQuantity: decimal.NewFromInt(10)},
	}

	levels := aggregateLevels(orders, 20)

	if len(levels) != 3 {
		t.Fatalf("expected 3 price levels, got %d", len(levels))
	}

	if !levels[0].Quantity.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected same-price orders folded to quantity 50, got %s", levels[0].Quantity)
	}
	if !levels[0].Total.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected running total 50 at first level, got %s", levels[0].Total)
	}
	if !levels[1].Total.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("expected running total 90 at second level, got %s", levels[1].Total)
	}
	if !levels[2].Total.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected running total 100 at third level, got %s", levels[2].Total)
	}
}

func TestAggregateLevelsCaps(t *testing.T) {
	orders := []model.Order{
		{Price: decimal.RequireFromString("1.08"), RemainingQuantity: decimal.NewFromInt(10)},
		{Price: decimal.RequireFromString("1.09"), RemainingQuantity: decimal.NewFromInt(10)},
		{Price: decimal.RequireFromString("1.10"), RemainingQuantity: decimal.NewFromInt(10)},
	}

	levels := aggregateLevels(orders, 2)
	if len(levels) != 2 {
		t.Fatalf("expected level cap of 2, got %d", len(levels))
	}
}

func TestAggregateLevelsEmptyBook(t *testing.T) {
	levels := aggregateLevels(nil, 20)
	if len(levels) != 0 {
		t.Fatalf("expected no levels for empty book, got %d", len(levels))
	}
}
