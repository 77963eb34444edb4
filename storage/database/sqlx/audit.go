package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/edhub/core/audit"
)

type auditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) audit.Repository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) InsertLog(ctx context.Context, at time.Time, tag, msg string) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO audit_logs (at, tag, message) VALUES ($1, $2, $3)`, at, tag, msg)
	return err
}

func (repo *auditRepository) DeleteLogsBefore(ctx context.Context, t time.Time) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE at < $1`, t)
	return err
}
