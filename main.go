package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"walletexchange/src/book"
	"walletexchange/src/database"
	"walletexchange/src/fees"
	"walletexchange/src/ledger"
	"walletexchange/src/locks"
	"walletexchange/src/matching"
	"walletexchange/src/pricing"
	"walletexchange/src/server"
	"walletexchange/src/settlement"
)

var (
	PORT     = os.Getenv("SERVER_PORT")
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	keys := locks.NewManager()
	l := ledger.NewLedger(keys)
	recorder := settlement.NewRecorder(l)
	engine := matching.NewEngine(keys, l, recorder, fees.NewService())
	bookSvc := book.NewService(keys, l, engine)
	adjuster := pricing.NewAdjuster(keys, l)

	port := PORT
	if port == "" {
		port = server.GetConfig().Port
	}
	server.StartServer(port, bookSvc, adjuster)
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
