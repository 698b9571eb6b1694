// Package store persists market data snapshots in SQLite so a screening
// session can be replayed later against exactly the same inputs.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gregtusar/synthlong/pkg/marketdata"
	"github.com/gregtusar/synthlong/pkg/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func Open(dbPath string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s, err := newStore(context.Background(), db, logger)
	if err != nil {
		return nil, err
	}
	logger.WithField("path", dbPath).Debug("Opened snapshot database")
	return s, nil
}

// newStore migrates the schema and closes db when that fails.
func newStore(ctx context.Context, db *gorm.DB, logger *logrus.Logger) (*Store, error) {
	if err := db.WithContext(ctx).AutoMigrate(
		&DBSpotSnapshot{},
		&DBExpirySnapshot{},
		&DBChainSnapshot{},
		&DBQuoteSnapshot{},
	); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) SaveSpot(ctx context.Context, ticker string, price float64, at time.Time) error {
	row := &DBSpotSnapshot{Ticker: normalize(ticker), Price: price, CapturedAt: at.UTC()}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to save spot snapshot: %w", err)
	}
	return nil
}

func (s *Store) SaveExpirations(ctx context.Context, ticker string, expiries []time.Time, at time.Time) error {
	dates := make([]string, len(expiries))
	for i, e := range expiries {
		dates[i] = marketdata.FormatDate(e)
	}
	row := &DBExpirySnapshot{Ticker: normalize(ticker), Dates: strings.Join(dates, ","), CapturedAt: at.UTC()}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to save expiry snapshot: %w", err)
	}
	return nil
}

func (s *Store) SaveChain(ctx context.Context, chain *models.OptionChain, at time.Time) error {
	row := &DBChainSnapshot{
		Ticker:     normalize(chain.Ticker),
		ExpiryDate: marketdata.FormatDate(chain.Expiry),
		CapturedAt: at.UTC(),
	}
	for _, side := range [][]models.OptionQuote{chain.Calls, chain.Puts} {
		for _, q := range side {
			row.Quotes = append(row.Quotes, DBQuoteSnapshot{
				Type:              string(q.Type),
				Strike:            q.Strike,
				Bid:               q.Bid,
				Ask:               q.Ask,
				Last:              q.Last,
				ImpliedVolatility: q.ImpliedVolatility,
			})
		}
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to save chain snapshot: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"ticker": row.Ticker,
		"expiry": row.ExpiryDate,
		"quotes": len(row.Quotes),
	}).Debug("Saved chain snapshot")
	return nil
}

func (s *Store) LatestSpot(ctx context.Context, ticker string) (float64, error) {
	var row DBSpotSnapshot
	err := s.db.WithContext(ctx).
		Where("ticker = ?", normalize(ticker)).
		Order("captured_at DESC, id DESC").
		First(&row).Error
	if err != nil {
		return 0, notFound("spot", ticker, err)
	}
	return row.Price, nil
}

func (s *Store) LatestExpirations(ctx context.Context, ticker string) ([]time.Time, error) {
	var row DBExpirySnapshot
	err := s.db.WithContext(ctx).
		Where("ticker = ?", normalize(ticker)).
		Order("captured_at DESC, id DESC").
		First(&row).Error
	if err != nil {
		return nil, notFound("expirations", ticker, err)
	}
	if row.Dates == "" {
		return nil, nil
	}

	var expiries []time.Time
	for _, d := range strings.Split(row.Dates, ",") {
		expiry, err := marketdata.ParseDate(d)
		if err != nil {
			return nil, fmt.Errorf("corrupt expiry snapshot %d: %w", row.ID, err)
		}
		expiries = append(expiries, expiry)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })
	return expiries, nil
}

func (s *Store) LatestChain(ctx context.Context, ticker string, expiry time.Time) (*models.OptionChain, error) {
	var row DBChainSnapshot
	err := s.db.WithContext(ctx).
		Preload("Quotes").
		Where("ticker = ? AND expiry_date = ?", normalize(ticker), marketdata.FormatDate(expiry)).
		Order("captured_at DESC, id DESC").
		First(&row).Error
	if err != nil {
		return nil, notFound("chain", ticker, err)
	}

	chain := models.OptionChain{Ticker: row.Ticker, Expiry: marketdata.DateOf(expiry)}
	for _, q := range row.Quotes {
		quote := models.OptionQuote{
			Ticker:            row.Ticker,
			Expiry:            chain.Expiry,
			Type:              models.OptionType(q.Type),
			Strike:            q.Strike,
			Bid:               q.Bid,
			Ask:               q.Ask,
			Last:              q.Last,
			ImpliedVolatility: q.ImpliedVolatility,
		}
		if quote.Type == models.OptionTypeCall {
			chain.Calls = append(chain.Calls, quote)
		} else {
			chain.Puts = append(chain.Puts, quote)
		}
	}
	sorted := chain.Sorted()
	return &sorted, nil
}

func notFound(kind, ticker string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("no recorded %s for %s: %w", kind, ticker, marketdata.ErrNoQuote)
	}
	return fmt.Errorf("failed to load %s snapshot: %w", kind, err)
}

func normalize(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
