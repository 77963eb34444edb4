package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/edhub/apps/api/echo"
	"github.com/trezcool/edhub/core"
	"github.com/trezcool/edhub/core/account"
	"github.com/trezcool/edhub/core/audit"
	"github.com/trezcool/edhub/core/course"
	"github.com/trezcool/edhub/services/email"
	"github.com/trezcool/edhub/services/logger"
	"github.com/trezcool/edhub/storage/database"
	"github.com/trezcool/edhub/storage/database/sqlx"
)

// TODO:
// - graceful shutdown on SIGTERM
// - Profiling (Benchmarking) !! https://blog.golang.org/pprof
func main() {
	conf, err := core.NewConfig()
	errAndDie(err)

	std := log.New(os.Stdout, conf.AppName+" ", log.LstdFlags|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(!conf.Debug)

	// set up validation
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger, conf)
	}

	trail := audit.NewTrail(sqlxrepos.NewAuditRepository(db), logger)
	acctRepo := sqlxrepos.NewAccountRepository(db)
	acctSvc := account.NewService(acctRepo, account.NewTokenBackend(conf), trail)
	courseSvc := course.NewService(
		account.NewDirectory(acctRepo),
		sqlxrepos.NewCourseRepository(db),
		trail,
		mailSvc,
		conf,
	)

	// first run on an empty system seeds the admin account
	if pwd, created, err := acctSvc.Bootstrap(context.Background()); err != nil {
		errAndDie(err)
	} else if created {
		std.Printf("bootstrapped admin account %q with password %q - store it now, it will not be shown again", account.BootstrapLogin, pwd)
	}

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:    conf.Server.Address(),
			Conf:       conf,
			Logger:     logger,
			Validate:   validate,
			Translator: translator,
			AccountSvc: acctSvc,
			CourseSvc:  courseSvc,
		},
	)
	app.Start()
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
