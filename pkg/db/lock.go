package db

import "gorm.io/gorm"

// LockingClause returns the row-lock suffix for SELECT statements. SQLite has
// no FOR UPDATE syntax; its writers are serialized by the single connection
// the pool is configured with, so the clause is omitted there.
func LockingClause(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}
