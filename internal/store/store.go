package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	storemodel "tradeflow/internal/store/model"
	"tradeflow/internal/types"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const singletonRowID = 1

// Store persists capital/execution configuration, the trade log and
// reconciliation snapshots on Gorm + SQLite.
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&storemodel.CapitalConfigModel{},
		&storemodel.ExecutionConfigModel{},
		&storemodel.TradeModel{},
		&storemodel.PositionSnapshotModel{},
		&storemodel.MetricSnapshotModel{},
		&storemodel.PriceHistoryModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for concurrent readers while
	// keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CapitalRecord mirrors the capital configuration singleton.
type CapitalRecord struct {
	TotalCapital        *float64
	MaxPositionPct      float64
	MaxDailyLossPct     float64
	EmergencyReservePct float64
	AvailableTradingPct float64
	MinCapitalThreshold float64
	Currency            string
	Initialized         bool
	UpdatedAt           time.Time
}

func (s *Store) SaveCapitalConfig(rec CapitalRecord) error {
	m := storemodel.CapitalConfigModel{
		ID:                  singletonRowID,
		TotalCapital:        rec.TotalCapital,
		MaxPositionPct:      rec.MaxPositionPct,
		MaxDailyLossPct:     rec.MaxDailyLossPct,
		EmergencyReservePct: rec.EmergencyReservePct,
		AvailableTradingPct: rec.AvailableTradingPct,
		MinCapitalThreshold: rec.MinCapitalThreshold,
		Currency:            rec.Currency,
		Initialized:         rec.Initialized,
		UpdatedAtUnix:       time.Now().Unix(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *Store) LoadCapitalConfig() (*CapitalRecord, error) {
	var m storemodel.CapitalConfigModel
	err := s.db.First(&m, singletonRowID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &CapitalRecord{
		TotalCapital:        m.TotalCapital,
		MaxPositionPct:      m.MaxPositionPct,
		MaxDailyLossPct:     m.MaxDailyLossPct,
		EmergencyReservePct: m.EmergencyReservePct,
		AvailableTradingPct: m.AvailableTradingPct,
		MinCapitalThreshold: m.MinCapitalThreshold,
		Currency:            m.Currency,
		Initialized:         m.Initialized,
		UpdatedAt:           time.Unix(m.UpdatedAtUnix, 0),
	}, nil
}

// ProviderOverride forces one provider into simulation regardless of the
// global execution flag.
type ProviderOverride struct {
	ForceSimulation bool   `json:"force_simulation"`
	Reason          string `json:"reason,omitempty"`
}

// ExecutionRecord mirrors the execution-mode singleton.
type ExecutionRecord struct {
	ExecutionMode     bool
	MaxTradeValue     float64
	ProviderOverrides map[string]ProviderOverride
	UpdatedAt         time.Time
}

func (s *Store) SaveExecutionConfig(rec ExecutionRecord) error {
	overrides, err := json.Marshal(rec.ProviderOverrides)
	if err != nil {
		return err
	}
	m := storemodel.ExecutionConfigModel{
		ID:                singletonRowID,
		ExecutionMode:     rec.ExecutionMode,
		MaxTradeValue:     rec.MaxTradeValue,
		ProviderOverrides: datatypes.JSON(overrides),
		UpdatedAtUnix:     time.Now().Unix(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *Store) LoadExecutionConfig() (*ExecutionRecord, error) {
	var m storemodel.ExecutionConfigModel
	err := s.db.First(&m, singletonRowID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	overrides := map[string]ProviderOverride{}
	if len(m.ProviderOverrides) > 0 {
		if err := json.Unmarshal(m.ProviderOverrides, &overrides); err != nil {
			return nil, fmt.Errorf("store: corrupt provider overrides: %w", err)
		}
	}
	return &ExecutionRecord{
		ExecutionMode:     m.ExecutionMode,
		MaxTradeValue:     m.MaxTradeValue,
		ProviderOverrides: overrides,
		UpdatedAt:         time.Unix(m.UpdatedAtUnix, 0),
	}, nil
}

func (s *Store) UpsertTrade(t types.Trade) error {
	m := storemodel.TradeModel{
		TradeID:       t.ID,
		Symbol:        t.Symbol,
		Side:          string(t.Side),
		Quantity:      t.Quantity,
		EntryPrice:    t.EntryPrice,
		EntryTime:     t.EntryTime.Unix(),
		Status:        string(t.Status),
		ExitPrice:     t.ExitPrice,
		PnL:           t.PnL,
		Venue:         t.Venue,
		CreatedAtUnix: time.Now().Unix(),
		UpdatedAtUnix: time.Now().Unix(),
	}
	if !t.ExitTime.IsZero() {
		m.ExitTime = t.ExitTime.Unix()
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trade_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "status", "exit_price", "exit_time", "pnl", "updated_at"}),
	}).Create(&m).Error
}

func (s *Store) ListTrades() ([]types.Trade, error) {
	var rows []storemodel.TradeModel
	if err := s.db.Order("entry_time asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Trade, 0, len(rows))
	for _, m := range rows {
		t := types.Trade{
			ID:         m.TradeID,
			Symbol:     m.Symbol,
			Side:       types.OrderSide(m.Side),
			Quantity:   m.Quantity,
			EntryPrice: m.EntryPrice,
			EntryTime:  time.Unix(m.EntryTime, 0),
			Status:     types.TradeStatus(m.Status),
			ExitPrice:  m.ExitPrice,
			PnL:        m.PnL,
			Venue:      m.Venue,
		}
		if m.ExitTime > 0 {
			t.ExitTime = time.Unix(m.ExitTime, 0)
		}
		out = append(out, t)
	}
	return out, nil
}

// SavePositionSnapshots replaces the reconciled position audit table with
// the current snapshot set.
func (s *Store) SavePositionSnapshots(positions []types.Position) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&storemodel.PositionSnapshotModel{}).Error; err != nil {
			return err
		}
		now := time.Now().Unix()
		for _, p := range positions {
			tradeIDs, err := json.Marshal(p.ContributingTrade)
			if err != nil {
				return err
			}
			m := storemodel.PositionSnapshotModel{
				Symbol:        p.Symbol,
				Side:          string(p.Side),
				Quantity:      p.Quantity,
				EntryPrice:    p.EntryPrice,
				CurrentPrice:  p.CurrentPrice,
				UnrealizedPnL: p.UnrealizedPnL,
				MarketValue:   p.MarketValue,
				CostBasis:     p.CostBasis,
				TradeIDs:      datatypes.JSON(tradeIDs),
				UpdatedAtUnix: now,
			}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) SaveMetrics(metrics map[string]float64) error {
	now := time.Now().Unix()
	for name, value := range metrics {
		m := storemodel.MetricSnapshotModel{
			MetricName:    name,
			MetricValue:   value,
			UpdatedAtUnix: now,
		}
		err := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "metric_name"}},
			UpdateAll: true,
		}).Create(&m).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RecordPrice(symbol string, price float64, source string) error {
	m := storemodel.PriceHistoryModel{
		Symbol:    strings.ToUpper(symbol),
		Price:     price,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
	}
	return s.db.Create(&m).Error
}

// LatestPrice returns the most recent recorded price for the symbol.
func (s *Store) LatestPrice(symbol string) (float64, bool, error) {
	var m storemodel.PriceHistoryModel
	err := s.db.Where("symbol = ?", strings.ToUpper(symbol)).
		Order("timestamp desc").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	return m.Price, true, nil
}
