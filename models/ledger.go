package models

import (
	"time"

	"github.com/cppla/habitcore/logicalday"
)

const (
	LedgerIncome  = "income"
	LedgerExpense = "expense"
)

// LedgerEntry is owned by the bookkeeping service; this core only sums it.
type LedgerEntry struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	UserID     string          `gorm:"size:36;not null;index:idx_ledger_user_day,priority:1" json:"user_id"`
	LogicalDay logicalday.Date `gorm:"type:varchar(10);not null;index:idx_ledger_user_day,priority:2" json:"logical_day"`
	Kind       string          `gorm:"size:16;not null" json:"kind"`
	Amount     int64           `gorm:"not null" json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}
