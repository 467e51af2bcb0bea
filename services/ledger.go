package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/cppla/habitcore/logicalday"
	"github.com/cppla/habitcore/models"
)

// Ledger supplies a user's money movement for one logical day, in minor units.
type Ledger interface {
	DailyTotals(ctx context.Context, userID string, day logicalday.Date) (income, expense int64, err error)
}

// NopLedger reports no money movement.
type NopLedger struct{}

func (NopLedger) DailyTotals(context.Context, string, logicalday.Date) (int64, int64, error) {
	return 0, 0, nil
}

// GormLedger sums the ledger_entries table.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger { return &GormLedger{db: db} }

func (l *GormLedger) DailyTotals(ctx context.Context, userID string, day logicalday.Date) (int64, int64, error) {
	var rows []struct {
		Kind  string
		Total int64
	}
	err := l.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Select("kind, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ? AND logical_day = ?", userID, day).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, fmt.Errorf("ledger totals for %s on %s: %w", userID, day, err)
	}
	var income, expense int64
	for _, r := range rows {
		switch r.Kind {
		case models.LedgerIncome:
			income += r.Total
		case models.LedgerExpense:
			expense += r.Total
		}
	}
	return income, expense, nil
}
