package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"walletexchange/src/database"
	"walletexchange/src/exchange"
	"walletexchange/src/locks"
	"walletexchange/src/model"
	"walletexchange/src/repository"
)

// Ledger owns every wallet balance mutation. Each operation runs inside
// a single database transaction and under the per-(user, currency) lock
// keys, so no caller ever observes a partially updated wallet.
type Ledger struct {
	db             *gorm.DB
	keys           *locks.Manager
	wallets        *repository.WalletRepository
	platformUserID uint
}

// NewLedger builds a ledger on the main database.
func NewLedger(keys *locks.Manager) *Ledger {
	config := database.GetConfig()

	return &Ledger{
		db:             database.MainDB,
		keys:           keys,
		wallets:        repository.NewWalletRepository(),
		platformUserID: config.PlatformUserID,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when joining an outer transaction.
func (l *Ledger) WithDB(db *gorm.DB) *Ledger {
	return &Ledger{
		db:             db,
		keys:           l.keys,
		wallets:        l.wallets,
		platformUserID: l.platformUserID,
	}
}

// PlatformUserID exposes the fee wallet owner for audit rows.
func (l *Ledger) PlatformUserID() uint {
	return l.platformUserID
}

// Reserve moves amount from available to reserved for (userID, currency).
// Fails with ErrInsufficientFunds when the available balance is short;
// nothing is mutated in that case.
func (l *Ledger) Reserve(
	ctx context.Context,
	userID uint,
	currency string,
	amount decimal.Decimal,
) error {

	if amount.LessThanOrEqual(decimal.Zero) {
		return exchange.Validationf("reservation amount must be positive, got %s", amount)
	}

	unlock := l.keys.Lock(locks.BalanceKey(userID, currency))
	defer unlock()

	return l.db.Transaction(func(tx *gorm.DB) error {
		wallets := l.wallets.WithDB(tx)

		wallet, err := wallets.GetOrCreateForUpdate(ctx, userID, currency)
		if err != nil {
			return err
		}

		if wallet.AvailableBalance.LessThan(amount) {
			logger.WithFields(map[string]interface{}{
				"component": "ledger",
				"op":        "Reserve",
				"user_id":   userID,
				"currency":  currency,
				"amount":    amount,
				"available": wallet.AvailableBalance,
			}).Warn("Reservation rejected, insufficient funds")

			return fmt.Errorf("%w: need %s %s, available %s",
				exchange.ErrInsufficientFunds, amount, currency, wallet.AvailableBalance)
		}

		wallet.AvailableBalance = wallet.AvailableBalance.Sub(amount)
		wallet.ReservedBalance = wallet.ReservedBalance.Add(amount)

		if err := wallets.Save(ctx, wallet); err != nil {
			return err
		}

		logger.WithFields(map[string]interface{}{
			"component": "ledger",
			"op":        "Reserve",
			"user_id":   userID,
			"currency":  currency,
			"amount":    amount,
		}).Info("Funds reserved")

		return nil
	})
}

// Release moves amount back from reserved to available and records it on
// the reservation. Fails when amount exceeds the reservation's
// outstanding hold. The reservation row must already be locked by the
// surrounding transaction when one is in flight.
func (l *Ledger) Release(
	ctx context.Context,
	reservation *model.FundReservation,
	amount decimal.Decimal,
) error {

	if amount.LessThanOrEqual(decimal.Zero) {
		return exchange.Validationf("release amount must be positive, got %s", amount)
	}

	if amount.GreaterThan(reservation.Outstanding()) {
		return exchange.Validationf("release of %s exceeds outstanding reservation %s",
			amount, reservation.Outstanding())
	}

	unlock := l.keys.Lock(locks.BalanceKey(reservation.UserID, reservation.Currency))
	defer unlock()

	return l.db.Transaction(func(tx *gorm.DB) error {
		wallets := l.wallets.WithDB(tx)

		wallet, err := wallets.GetOrCreateForUpdate(ctx, reservation.UserID, reservation.Currency)
		if err != nil {
			return err
		}

		if wallet.ReservedBalance.LessThan(amount) {
			return fmt.Errorf("reserved balance %s below release amount %s for wallet %d",
				wallet.ReservedBalance, amount, wallet.ID)
		}

		wallet.ReservedBalance = wallet.ReservedBalance.Sub(amount)
		wallet.AvailableBalance = wallet.AvailableBalance.Add(amount)

		if err := wallets.Save(ctx, wallet); err != nil {
			return err
		}

		reservation.ReleasedAmount = reservation.ReleasedAmount.Add(amount)
		if reservation.ReleasedAmount.Equal(reservation.ReservedAmount) {
			reservation.Status = model.ReservationStatusReleased
		}

		orders := repository.NewOrderRepository().WithDB(tx)
		if err := orders.SaveReservation(ctx, reservation); err != nil {
			return err
		}

		logger.WithFields(map[string]interface{}{
			"component": "ledger",
			"op":        "Release",
			"order_id":  reservation.OrderID,
			"currency":  reservation.Currency,
			"amount":    amount,
		}).Info("Reservation released")

		return nil
	})
}

// Settle applies the four balance legs of a trade plus the platform fee
// credits as one atomic unit:
//
//	seller reserved base  -= quantity
//	buyer  available base += quantity - buyerFee
//	buyer  reserved quote -= quoteAmount
//	seller available quote += quoteAmount - sellerFee
//	platform available    += buyerFee (base) and sellerFee (quote)
//
// If any leg would overdraw, everything rolls back and the error
// propagates so the caller also discards the Trade row.
func (l *Ledger) Settle(
	ctx context.Context,
	trade *model.Trade,
) error {

	unlock := l.keys.LockAll(
		locks.BalanceKey(trade.SellerID, trade.BaseCurrency),
		locks.BalanceKey(trade.BuyerID, trade.BaseCurrency),
		locks.BalanceKey(trade.BuyerID, trade.QuoteCurrency),
		locks.BalanceKey(trade.SellerID, trade.QuoteCurrency),
		locks.BalanceKey(l.platformUserID, trade.BaseCurrency),
		locks.BalanceKey(l.platformUserID, trade.QuoteCurrency),
	)
	defer unlock()

	return l.db.Transaction(func(tx *gorm.DB) error {
		wallets := l.wallets.WithDB(tx)

		sellerBase, err := wallets.GetOrCreateForUpdate(ctx, trade.SellerID, trade.BaseCurrency)
		if err != nil {
			return err
		}
		if sellerBase.ReservedBalance.LessThan(trade.Quantity) {
			return fmt.Errorf("seller reserved base %s below trade quantity %s",
				sellerBase.ReservedBalance, trade.Quantity)
		}
		sellerBase.ReservedBalance = sellerBase.ReservedBalance.Sub(trade.Quantity)
		if err := wallets.Save(ctx, sellerBase); err != nil {
			return err
		}

		buyerBase, err := wallets.GetOrCreateForUpdate(ctx, trade.BuyerID, trade.BaseCurrency)
		if err != nil {
			return err
		}
		buyerBase.AvailableBalance = buyerBase.AvailableBalance.Add(trade.Quantity.Sub(trade.BuyerFee))
		if err := wallets.Save(ctx, buyerBase); err != nil {
			return err
		}

		buyerQuote, err := wallets.GetOrCreateForUpdate(ctx, trade.BuyerID, trade.QuoteCurrency)
		if err != nil {
			return err
		}
		if buyerQuote.ReservedBalance.LessThan(trade.QuoteAmount) {
			return fmt.Errorf("buyer reserved quote %s below trade amount %s",
				buyerQuote.ReservedBalance, trade.QuoteAmount)
		}
		buyerQuote.ReservedBalance = buyerQuote.ReservedBalance.Sub(trade.QuoteAmount)
		if err := wallets.Save(ctx, buyerQuote); err != nil {
			return err
		}

		sellerQuote, err := wallets.GetOrCreateForUpdate(ctx, trade.SellerID, trade.QuoteCurrency)
		if err != nil {
			return err
		}
		sellerQuote.AvailableBalance = sellerQuote.AvailableBalance.Add(trade.QuoteAmount.Sub(trade.SellerFee))
		if err := wallets.Save(ctx, sellerQuote); err != nil {
			return err
		}

		if trade.BuyerFee.GreaterThan(decimal.Zero) {
			platformBase, err := wallets.GetOrCreateForUpdate(ctx, l.platformUserID, trade.BaseCurrency)
			if err != nil {
				return err
			}
			platformBase.AvailableBalance = platformBase.AvailableBalance.Add(trade.BuyerFee)
			if err := wallets.Save(ctx, platformBase); err != nil {
				return err
			}
		}

		if trade.SellerFee.GreaterThan(decimal.Zero) {
			platformQuote, err := wallets.GetOrCreateForUpdate(ctx, l.platformUserID, trade.QuoteCurrency)
			if err != nil {
				return err
			}
			platformQuote.AvailableBalance = platformQuote.AvailableBalance.Add(trade.SellerFee)
			if err := wallets.Save(ctx, platformQuote); err != nil {
				return err
			}
		}

		logger.WithFields(map[string]interface{}{
			"component":    "ledger",
			"op":           "Settle",
			"buy_order":    trade.BuyOrderID,
			"sell_order":   trade.SellOrderID,
			"quantity":     trade.Quantity,
			"quote_amount": trade.QuoteAmount,
		}).Info("Trade settled")

		return nil
	})
}
