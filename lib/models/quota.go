package models

import "time"

// QuotaUsage accumulates API units spent inside one daily quota window. The
// platform resets quotas at midnight Pacific time, so window boundaries are
// computed in that zone and stored as UTC.
type QuotaUsage struct {
	ID          uint      `gorm:"primaryKey"`
	WindowStart time.Time `gorm:"index:idx_quota_window,unique"`
	WindowEnd   time.Time `gorm:"index:idx_quota_window,unique"`
	UsageCount  int
	ResetAt     time.Time

	UpdatedAt time.Time
}
