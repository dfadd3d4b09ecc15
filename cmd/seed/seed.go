package seed

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"walletexchange/src/database"
	"walletexchange/src/model"
)

type Config struct {
	SeedDBPath string `envconfig:"SEED_DB_PATH" default:"walletexchange.db"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}

type Seeder struct{}

// Start builds a local SQLite database with demo users, funded wallets,
// tradable pairs and fee schedules, for development against a real
// dataset without a Postgres instance.
func (s *Seeder) Start() error {
	config := GetConfig()

	db, err := gorm.Open(sqlite.Open(config.SeedDBPath), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to open seed database")
		return err
	}

	if err := database.Migrate(db); err != nil {
		logrus.WithError(err).Error("Failed to migrate seed database")
		return err
	}

	if err := seedData(db); err != nil {
		logrus.WithError(err).Error("Failed to seed demo data")
		return err
	}

	logrus.WithField("path", config.SeedDBPath).Info("Seed database ready")
	return nil
}

func seedData(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		users := []model.User{
			{ID: 1, Username: "platform", KYCCompleted: true},
			{ID: 2, Username: "alice", KYCCompleted: true},
			{ID: 3, Username: "bob", KYCCompleted: true},
			{ID: 4, Username: "carol", KYCCompleted: false},
		}
		for i := range users {
			if err := tx.FirstOrCreate(&users[i], model.User{ID: users[i].ID}).Error; err != nil {
				return err
			}
		}

		wallets := []model.Wallet{
			{UserID: 2, Currency: "USD", AvailableBalance: decimal.NewFromInt(100000), ReservedBalance: decimal.Zero},
			{UserID: 2, Currency: "EUR", AvailableBalance: decimal.NewFromInt(50000), ReservedBalance: decimal.Zero},
			{UserID: 3, Currency: "USD", AvailableBalance: decimal.NewFromInt(100000), ReservedBalance: decimal.Zero},
			{UserID: 3, Currency: "EUR", AvailableBalance: decimal.NewFromInt(50000), ReservedBalance: decimal.Zero},
			{UserID: 4, Currency: "USD", AvailableBalance: decimal.NewFromInt(10000), ReservedBalance: decimal.Zero},
		}
		for i := range wallets {
			if err := tx.FirstOrCreate(&wallets[i], model.Wallet{
				UserID:   wallets[i].UserID,
				Currency: wallets[i].Currency,
			}).Error; err != nil {
				return err
			}
		}

		pairs := []model.CurrencyPair{
			{BaseCurrency: "EUR", QuoteCurrency: "USD", MinQuantity: decimal.NewFromInt(10), Active: true},
			{BaseCurrency: "GBP", QuoteCurrency: "USD", MinQuantity: decimal.NewFromInt(10), Active: true},
			{BaseCurrency: "EUR", QuoteCurrency: "GBP", MinQuantity: decimal.NewFromInt(10), Active: true},
		}
		for i := range pairs {
			if err := tx.FirstOrCreate(&pairs[i], model.CurrencyPair{
				BaseCurrency:  pairs[i].BaseCurrency,
				QuoteCurrency: pairs[i].QuoteCurrency,
			}).Error; err != nil {
				return err
			}
		}

		fees := []model.FeeSchedule{
			{Currency: "EUR", TransactionType: model.FeeTxTypeTradeBuy, Percentage: decimal.RequireFromString("0.25"), Active: true},
			{Currency: "USD", TransactionType: model.FeeTxTypeTradeSell, Percentage: decimal.RequireFromString("0.25"), Active: true},
			{Currency: "GBP", TransactionType: model.FeeTxTypeTradeBuy, Percentage: decimal.RequireFromString("0.25"), Active: true},
		}
		for i := range fees {
			if err := tx.FirstOrCreate(&fees[i], model.FeeSchedule{
				Currency:        fees[i].Currency,
				TransactionType: fees[i].TransactionType,
			}).Error; err != nil {
				return err
			}
		}

		return nil
	})
}
