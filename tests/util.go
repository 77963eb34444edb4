package testutil

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/trezcool/edhub/core/account"
	"github.com/trezcool/edhub/core/audit"
	"github.com/trezcool/edhub/services/logger"
	"github.com/trezcool/edhub/storage/database/inmem"
)

func CreateAccount(
	t *testing.T,
	repo account.Repository,
	login, name, pwd string,
	isAdmin bool,
	registeredAt ...time.Time,
) account.Account {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(registeredAt) > 0 {
		tstamp = registeredAt[0].UTC()
	}
	acct := account.Account{
		Login:        login,
		Name:         name,
		IsAdmin:      isAdmin,
		RegisteredAt: tstamp,
	}
	if pwd != "" {
		if err := acct.SetPassword(pwd); err != nil {
			t.Fatalf("CreateAccount() failed: %v", err)
		}
	}
	if err := repo.CreateAccount(context.Background(), acct); err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acct
}

// NewTrail returns an audit trail backed by an in-memory store and a
// console logger, for wiring services under test.
func NewTrail(t *testing.T) *audit.Trail {
	t.Helper()

	std := log.New(os.Stdout, "TEST : ", log.LstdFlags)
	return audit.NewTrail(inmemdb.NewAuditRepository(inmemdb.NewDB()), logsvc.NewConsoleLogger(std))
}
