package models

// All lists every table the service migrates.
func All() []interface{} {
	return []interface{}{
		&User{},
		&RecurringTask{},
		&RecurrenceRule{},
		&ObligationInstance{},
		&DailySnapshot{},
		&GamificationStats{},
		&PointLog{},
		&AchievementUnlock{},
		&LedgerEntry{},
		&JobRun{},
	}
}
