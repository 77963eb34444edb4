package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/edhub/core/account"
)

type accountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) AccountExists(ctx context.Context, login string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.accounts[login]
	return ok, nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, login string) (account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if acct, ok := repo.db.accounts[login]; ok {
		return *acct, nil
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acct account.Account) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.accounts[acct.Login] = &acct
	return nil
}

func (repo *accountRepository) UpdatePassword(ctx context.Context, login string, hash []byte) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	acct, ok := repo.db.accounts[login]
	if !ok {
		return account.ErrNotFound
	}
	acct.PasswordHash = hash
	return nil
}

func (repo *accountRepository) SetAdmin(ctx context.Context, login string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	acct, ok := repo.db.accounts[login]
	if !ok {
		return account.ErrNotFound
	}
	acct.IsAdmin = true
	return nil
}

func (repo *accountRepository) QueryAllAccounts(ctx context.Context) ([]account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	accts := make([]account.Account, 0, len(repo.db.accounts))
	for _, acct := range repo.db.accounts {
		accts = append(accts, *acct)
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].Login < accts[j].Login })
	return accts, nil
}

func (repo *accountRepository) CountAdmins(ctx context.Context) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var n int
	for _, acct := range repo.db.accounts {
		if acct.IsAdmin {
			n++
		}
	}
	return n, nil
}

func (repo *accountRepository) AdminsExist(ctx context.Context) (bool, error) {
	n, err := repo.CountAdmins(ctx)
	return n > 0, err
}

func (repo *accountRepository) SoleTeacherCourses(ctx context.Context, login string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]string, 0)
	for id, crs := range repo.db.courses {
		if crs.teachers[login] && len(crs.teachers) == 1 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *accountRepository) RemoveAccount(ctx context.Context, login string, courseIDs []string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.accounts[login]; !ok {
		return account.ErrNotFound
	}
	for _, courseID := range courseIDs {
		repo.db.deleteCourse(courseID)
	}
	for _, crs := range repo.db.courses {
		delete(crs.teachers, login)
		if crs.students[login] {
			crs.detachStudent(repo.db, login)
		}
		delete(crs.parents, login)
	}
	delete(repo.db.accounts, login)
	return nil
}
