package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/edhub/core/audit"
)

type auditRepository struct {
	db *DB
}

func NewAuditRepository(db *DB) audit.Repository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) InsertLog(ctx context.Context, at time.Time, tag, msg string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.logs = append(repo.db.logs, logRow{at: at, tag: tag, msg: msg})
	return nil
}

func (repo *auditRepository) DeleteLogsBefore(ctx context.Context, t time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	kept := repo.db.logs[:0]
	for _, row := range repo.db.logs {
		if !row.at.Before(t) {
			kept = append(kept, row)
		}
	}
	repo.db.logs = kept
	return nil
}
