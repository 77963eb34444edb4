package main

import (
	"log"
	"os"

	"github.com/trezcool/edhub/core"
	"github.com/trezcool/edhub/core/account"
	"github.com/trezcool/edhub/core/audit"
	"github.com/trezcool/edhub/services/logger"
	"github.com/trezcool/edhub/storage/database"
	"github.com/trezcool/edhub/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(err)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	trail := audit.NewTrail(sqlxrepos.NewAuditRepository(db), logsvc.NewConsoleLogger(logger))
	acctRepo := sqlxrepos.NewAccountRepository(db)

	// start CLI
	cli := commandLine{
		db:       db,
		acctRepo: acctRepo,
		acctSvc:  account.NewService(acctRepo, account.NewTokenBackend(conf), trail),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
