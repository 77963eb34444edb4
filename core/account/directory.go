package account

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Directory exposes the read-only slice of the identity store other
// domains need: existence and the system admin flag.
type Directory struct {
	repo Repository
}

func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) AccountExists(ctx context.Context, login string) (bool, error) {
	return d.repo.AccountExists(ctx, login)
}

// IsAdmin reports the admin flag; unknown logins are simply not admins.
func (d *Directory) IsAdmin(ctx context.Context, login string) (bool, error) {
	acct, err := d.repo.GetAccount(ctx, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(err, "finding account")
	}
	return acct.IsAdmin, nil
}
