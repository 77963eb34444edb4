package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/edhub/core/account"
)

type accountRepository struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) AccountExists(ctx context.Context, login string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM accounts WHERE login = $1)`, login)
	return exists, err
}

func (repo *accountRepository) GetAccount(ctx context.Context, login string) (account.Account, error) {
	var acct account.Account
	err := repo.db.GetContext(ctx, &acct,
		`SELECT login, name, is_admin, password_hash, registered_at FROM accounts WHERE login = $1`, login)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, account.ErrNotFound
	}
	return acct, err
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acct account.Account) error {
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO accounts (login, name, is_admin, password_hash, registered_at)
		 VALUES (:login, :name, :is_admin, :password_hash, :registered_at)`, acct)
	return err
}

func (repo *accountRepository) UpdatePassword(ctx context.Context, login string, hash []byte) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE accounts SET password_hash = $2 WHERE login = $1`, login, hash)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (repo *accountRepository) SetAdmin(ctx context.Context, login string) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE accounts SET is_admin = TRUE WHERE login = $1`, login)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (repo *accountRepository) QueryAllAccounts(ctx context.Context) ([]account.Account, error) {
	accts := make([]account.Account, 0)
	err := repo.db.SelectContext(ctx, &accts,
		`SELECT login, name, is_admin, password_hash, registered_at FROM accounts ORDER BY login`)
	return accts, err
}

func (repo *accountRepository) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM accounts WHERE is_admin`)
	return n, err
}

func (repo *accountRepository) AdminsExist(ctx context.Context) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM accounts WHERE is_admin)`)
	return exists, err
}

func (repo *accountRepository) SoleTeacherCourses(ctx context.Context, login string) ([]string, error) {
	ids := make([]string, 0)
	err := repo.db.SelectContext(ctx, &ids,
		`SELECT course_id FROM course_teachers
		 WHERE login = $1
		   AND course_id NOT IN (SELECT course_id FROM course_teachers WHERE login <> $1)`, login)
	return ids, err
}

// RemoveAccount deletes the account, its memberships and the courses it
// was the sole teacher of, in one transaction. Course contents follow
// via the schema's cascades; orphaned file blobs are deleted explicitly
// since the blob table has no course link.
func (repo *accountRepository) RemoveAccount(ctx context.Context, login string, courseIDs []string) error {
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, courseID := range courseIDs {
			if err := removeCourseTx(ctx, tx, courseID); err != nil {
				return err
			}
		}
		// the account's submission and parent-link rows cascade off the
		// membership rows, which cascade off the account row; submission
		// attachment blobs need the explicit delete
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM files WHERE id IN (
			     SELECT file_id FROM attachments WHERE owner_kind = 'submission' AND student = $1)`, login); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE login = $1`, login)
		if err != nil {
			return err
		}
		return checkAffected(res)
	})
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// removeCourseTx deletes a course and its file blobs inside tx; every
// other course-scoped row cascades off the courses row.
func removeCourseTx(ctx context.Context, tx *sqlx.Tx, courseID string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM files WHERE id IN (SELECT file_id FROM attachments WHERE course_id = $1)`, courseID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, courseID)
	return err
}
