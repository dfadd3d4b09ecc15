package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"walletexchange/src/exchange"
	"walletexchange/src/ledger"
	"walletexchange/src/model"
	"walletexchange/src/repository"
)

// Recorder persists one settlement: the immutable Trade row, the two
// counterparty audit records and the ledger's balance legs, all inside
// the caller's transaction. A Trade can never exist without its balance
// mutations, and vice versa.
type Recorder struct {
	db        *gorm.DB
	ledger    *ledger.Ledger
	trades    *repository.TradeRepository
	walletTxs *repository.WalletTransactionRepository
}

// NewRecorder builds a recorder sharing the given ledger.
func NewRecorder(l *ledger.Ledger) *Recorder {
	return &Recorder{
		db:        nil,
		ledger:    l,
		trades:    repository.NewTradeRepository(),
		walletTxs: repository.NewWalletTransactionRepository(),
	}
}

// WithDB binds the recorder to the transaction the match executes in.
func (r *Recorder) WithDB(db *gorm.DB) *Recorder {
	return &Recorder{
		db:        db,
		ledger:    r.ledger.WithDB(db),
		trades:    r.trades.WithDB(db),
		walletTxs: r.walletTxs.WithDB(db),
	}
}

// Reference derives the deterministic idempotency key for one fill. A
// retried settlement of the same fill regenerates the same reference
// and trips the unique index instead of applying twice.
func Reference(buyOrderID, sellOrderID uint, fillSeq string) string {
	key := fmt.Sprintf("trade:%d:%d:%s", buyOrderID, sellOrderID, fillSeq)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// Record writes the trade, settles the ledger legs and appends the
// audit rows. Must be called inside a transaction (WithDB). Returns
// ErrDuplicateSettlement when the reference was already committed.
func (r *Recorder) Record(
	ctx context.Context,
	trade *model.Trade,
) error {

	if r.db == nil {
		return fmt.Errorf("settlement recorder must be bound to a transaction")
	}

	if err := r.trades.Create(ctx, trade); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.WithFields(map[string]interface{}{
				"component": "settlement",
				"reference": trade.Reference,
			}).Warn("Settlement replay detected, skipping")

			return exchange.ErrDuplicateSettlement
		}
		return err
	}

	if err := r.ledger.Settle(ctx, trade); err != nil {
		return err
	}

	buyerTx := &model.WalletTransaction{
		TradeID:   trade.ID,
		UserID:    trade.BuyerID,
		Currency:  trade.BaseCurrency,
		Amount:    trade.Quantity.Sub(trade.BuyerFee),
		Type:      model.WalletTxTypeTradeBuy,
		Status:    model.WalletTxStatusCompleted,
		Reference: trade.Reference,
	}
	if err := r.walletTxs.Create(ctx, buyerTx); err != nil {
		return err
	}

	sellerTx := &model.WalletTransaction{
		TradeID:   trade.ID,
		UserID:    trade.SellerID,
		Currency:  trade.QuoteCurrency,
		Amount:    trade.QuoteAmount.Sub(trade.SellerFee),
		Type:      model.WalletTxTypeTradeSell,
		Status:    model.WalletTxStatusCompleted,
		Reference: trade.Reference,
	}
	if err := r.walletTxs.Create(ctx, sellerTx); err != nil {
		return err
	}

	platformID := r.ledger.PlatformUserID()

	if trade.BuyerFee.IsPositive() {
		feeTx := &model.WalletTransaction{
			TradeID:   trade.ID,
			UserID:    platformID,
			Currency:  trade.BaseCurrency,
			Amount:    trade.BuyerFee,
			Type:      model.WalletTxTypeFee,
			Status:    model.WalletTxStatusCompleted,
			Reference: trade.Reference,
		}
		if err := r.walletTxs.Create(ctx, feeTx); err != nil {
			return err
		}
	}

	if trade.SellerFee.IsPositive() {
		feeTx := &model.WalletTransaction{
			TradeID:   trade.ID,
			UserID:    platformID,
			Currency:  trade.QuoteCurrency,
			Amount:    trade.SellerFee,
			Type:      model.WalletTxTypeFee,
			Status:    model.WalletTxStatusCompleted,
			Reference: trade.Reference,
		}
		if err := r.walletTxs.Create(ctx, feeTx); err != nil {
			return err
		}
	}

	return nil
}
