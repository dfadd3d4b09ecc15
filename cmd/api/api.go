package api

import (
	"walletexchange/src/book"
	"walletexchange/src/database"
	"walletexchange/src/fees"
	"walletexchange/src/ledger"
	"walletexchange/src/locks"
	"walletexchange/src/matching"
	"walletexchange/src/pricing"
	"walletexchange/src/server"
	"walletexchange/src/settlement"

	"github.com/sirupsen/logrus"
)

type API struct{}

func (a *API) Start() error {
	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	keys := locks.NewManager()
	l := ledger.NewLedger(keys)
	recorder := settlement.NewRecorder(l)
	engine := matching.NewEngine(keys, l, recorder, fees.NewService())
	bookSvc := book.NewService(keys, l, engine)
	adjuster := pricing.NewAdjuster(keys, l)

	server.StartServer(server.GetConfig().Port, bookSvc, adjuster)
	return nil
}
