package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"walletexchange/cmd/api"
	"walletexchange/cmd/pricer"
	"walletexchange/cmd/seed"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Walletexchange CMD"
	app.Usage = "The Walletexchange command line interface"

	app.Commands = []cli.Command{
		apiCMD,
		pricerCMD,
		seedCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	apiCMD = cli.Command{
		Name:        "api",
		Usage:       "run API server",
		Action:      apiAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the order book API server`,
	}
	pricerCMD = cli.Command{
		Name:        "pricer",
		Usage:       "run dynamic pricing loop",
		Action:      pricerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the dynamic pricing adjuster loop`,
	}
	seedCMD = cli.Command{
		Name:        "seed",
		Usage:       "build a local demo database",
		Action:      seedAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Build a local SQLite database with demo data`,
	}
)

func apiAction(_ *cli.Context) error {

	logrus.Info("Starting API CMD")
	logrus.WithField("cmd", "api")

	a := &api.API{}
	err := a.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func pricerAction(_ *cli.Context) error {

	logrus.Info("Starting pricer CMD")
	logrus.WithField("cmd", "pricer")

	p := &pricer.Pricer{}
	err := p.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func seedAction(_ *cli.Context) error {

	logrus.Info("Starting seed CMD")
	logrus.WithField("cmd", "seed")

	s := &seed.Seeder{}
	err := s.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
