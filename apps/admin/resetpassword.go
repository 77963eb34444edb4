package main

import (
	"context"

	"github.com/trezcool/edhub/core"
)

func (cli *commandLine) resetPassword(login, pwd string) error {
	ctx := context.Background()
	login = core.CleanString(login, true /* lower */)
	acct, err := cli.acctRepo.GetAccount(ctx, login)
	if err != nil {
		return err
	}
	if err := acct.SetPassword(pwd); err != nil {
		return err
	}
	return cli.acctRepo.UpdatePassword(ctx, login, acct.PasswordHash)
}
