package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) bootstrap(ctx context.Context) error {
	pwd, created, err := cli.acctSvc.Bootstrap(ctx)
	if err != nil {
		return err
	}
	if !created {
		fmt.Println("an admin account already exists; nothing to do")
		return nil
	}
	fmt.Printf("admin account created; one-time password: %s\n", pwd)
	return nil
}
