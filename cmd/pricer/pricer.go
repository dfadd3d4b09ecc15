package pricer

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"walletexchange/src/database"
	"walletexchange/src/ledger"
	"walletexchange/src/locks"
	"walletexchange/src/pricing"
)

type Pricer struct{}

func (p *Pricer) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	keys := locks.NewManager()
	adjuster := pricing.NewAdjuster(keys, ledger.NewLedger(keys))

	logrus.Info("Starting dynamic pricing loop")
	if err := pricing.StartLoop(ctx, adjuster); err != nil {
		logrus.WithError(err).Error("Failed to start pricing loop")
		return err
	}

	return nil
}
