package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/edhub/core"
	"github.com/trezcool/edhub/core/audit"
)

// ErrNotFound is returned by repositories when no account matches.
var ErrNotFound = errors.New("account not found")

// BootstrapLogin is the login of the account created by Bootstrap.
const BootstrapLogin = "admin"

type (
	Repository interface {
		AccountExists(ctx context.Context, login string) (bool, error)
		GetAccount(ctx context.Context, login string) (Account, error)
		CreateAccount(ctx context.Context, acct Account) error
		UpdatePassword(ctx context.Context, login string, hash []byte) error
		SetAdmin(ctx context.Context, login string) error
		QueryAllAccounts(ctx context.Context) ([]Account, error)
		CountAdmins(ctx context.Context) (int, error)
		AdminsExist(ctx context.Context) (bool, error)

		// SoleTeacherCourses returns the ids of courses where login is the
		// only remaining teacher.
		SoleTeacherCourses(ctx context.Context, login string) ([]string, error)

		// RemoveAccount deletes the listed courses (with their full
		// contents), the account and all its memberships in one transaction.
		RemoveAccount(ctx context.Context, login string, courseIDs []string) error
	}

	Service struct {
		repo   Repository
		tokens *TokenBackend
		trail  *audit.Trail
	}
)

func NewService(repo Repository, tokens *TokenBackend, trail *audit.Trail) *Service {
	return &Service{repo: repo, tokens: tokens, trail: trail}
}

// Session is what a successful registration or login yields.
type Session struct {
	Login       string `json:"login"`
	AccessToken string `json:"access_token"`
}

// Register creates a new account and returns a fresh session for it.
// The NewAccount must have been validated by the caller.
func (svc *Service) Register(ctx context.Context, na NewAccount) (Session, error) {
	exists, err := svc.repo.AccountExists(ctx, na.Login)
	if err != nil {
		return Session{}, pkgerrors.Wrap(err, "checking account existence")
	}
	if exists {
		return Session{}, core.ErrUserExists(na.Login)
	}

	acct := Account{
		Login:        na.Login,
		Name:         na.Name,
		RegisteredAt: time.Now().UTC(),
	}
	if err = acct.SetPassword(na.Password); err != nil {
		return Session{}, pkgerrors.Wrap(err, "hashing password")
	}
	if err = svc.repo.CreateAccount(ctx, acct); err != nil {
		return Session{}, pkgerrors.Wrap(err, "creating account")
	}
	svc.trail.Log(ctx, audit.TagUserAdd, fmt.Sprintf("Created new user: %s", acct.Login))

	token, err := svc.tokens.Issue(acct)
	if err != nil {
		return Session{}, pkgerrors.Wrap(err, "issuing token")
	}
	return Session{Login: acct.Login, AccessToken: token}, nil
}

// Authenticate checks the credentials and returns a fresh session.
// Unknown logins and wrong passwords are indistinguishable to the caller.
func (svc *Service) Authenticate(ctx context.Context, creds Credentials) (Session, error) {
	acct, err := svc.repo.GetAccount(ctx, creds.Login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, core.ErrInvalidCredentials()
		}
		return Session{}, pkgerrors.Wrap(err, "finding account")
	}
	if err = acct.CheckPassword(creds.Password); err != nil {
		return Session{}, core.ErrInvalidCredentials()
	}
	token, err := svc.tokens.Issue(acct)
	if err != nil {
		return Session{}, pkgerrors.Wrap(err, "issuing token")
	}
	return Session{Login: acct.Login, AccessToken: token}, nil
}

// Verify resolves a token string to the account it was issued for.
// A token referencing a deleted account is rejected.
func (svc *Service) Verify(ctx context.Context, tokenStr string) (Account, error) {
	claims, err := svc.tokens.Verify(tokenStr)
	if err != nil {
		return Account{}, err
	}
	acct, err := svc.repo.GetAccount(ctx, claims.Login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, core.ErrUserNotFound(claims.Login)
		}
		return Account{}, pkgerrors.Wrap(err, "finding account")
	}
	return acct, nil
}

func (svc *Service) ChangePassword(ctx context.Context, pc PasswordChange) error {
	acct, err := svc.repo.GetAccount(ctx, pc.Login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return core.ErrInvalidCredentials()
		}
		return pkgerrors.Wrap(err, "finding account")
	}
	if err = acct.CheckPassword(pc.Password); err != nil {
		return core.ErrInvalidCredentials()
	}
	if err = acct.SetPassword(pc.NewPassword); err != nil {
		return pkgerrors.Wrap(err, "hashing password")
	}
	if err = svc.repo.UpdatePassword(ctx, acct.Login, acct.PasswordHash); err != nil {
		return pkgerrors.Wrap(err, "updating password")
	}
	svc.trail.Log(ctx, audit.TagUserChangePwd, fmt.Sprintf("User %s changed their password", acct.Login))
	return nil
}

// Remove deletes an account. Courses where the account is the sole
// remaining teacher are deleted entirely; the whole cascade commits or
// rolls back as one unit. The last admin of the system cannot be removed.
func (svc *Service) Remove(ctx context.Context, login string) error {
	acct, err := svc.repo.GetAccount(ctx, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return core.ErrUserNotFound(login)
		}
		return pkgerrors.Wrap(err, "finding account")
	}

	if acct.IsAdmin {
		n, err := svc.repo.CountAdmins(ctx)
		if err != nil {
			return pkgerrors.Wrap(err, "counting admins")
		}
		if n <= 1 {
			return core.ErrLastAdmin(login)
		}
	}

	courseIDs, err := svc.repo.SoleTeacherCourses(ctx, login)
	if err != nil {
		return pkgerrors.Wrap(err, "finding sole-teacher courses")
	}
	if err = svc.repo.RemoveAccount(ctx, login, courseIDs); err != nil {
		return pkgerrors.Wrap(err, "removing account")
	}
	svc.trail.Log(ctx, audit.TagUserDel, fmt.Sprintf("Removed user %s from the system", login))
	return nil
}

// GrantAdmin gives the target account the system admin flag. Admin only.
func (svc *Service) GrantAdmin(ctx context.Context, requester, target string) error {
	if err := svc.assertAdmin(ctx, requester); err != nil {
		return err
	}
	exists, err := svc.repo.AccountExists(ctx, target)
	if err != nil {
		return pkgerrors.Wrap(err, "checking account existence")
	}
	if !exists {
		return core.ErrUserNotFound(target)
	}
	if err = svc.repo.SetAdmin(ctx, target); err != nil {
		return pkgerrors.Wrap(err, "granting admin")
	}
	svc.trail.Log(ctx, audit.TagAdminAdd, fmt.Sprintf("Added admin privileges to user: %s", target))
	return nil
}

// List returns all accounts. Admin only.
func (svc *Service) List(ctx context.Context, requester string) ([]PublicAccount, error) {
	if err := svc.assertAdmin(ctx, requester); err != nil {
		return nil, err
	}
	accts, err := svc.repo.QueryAllAccounts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying accounts")
	}
	pub := make([]PublicAccount, 0, len(accts))
	for _, acct := range accts {
		pub = append(pub, acct.Public())
	}
	return pub, nil
}

func (svc *Service) Info(ctx context.Context, login string) (PublicAccount, error) {
	acct, err := svc.repo.GetAccount(ctx, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PublicAccount{}, core.ErrUserNotFound(login)
		}
		return PublicAccount{}, pkgerrors.Wrap(err, "finding account")
	}
	return acct.Public(), nil
}

// Bootstrap creates the initial admin account with a random password.
// It is idempotent: when any admin already exists it does nothing.
// The generated password is returned exactly once and never stored in
// clear; losing it means re-bootstrapping a fresh system.
func (svc *Service) Bootstrap(ctx context.Context) (pwd string, created bool, err error) {
	exist, err := svc.repo.AdminsExist(ctx)
	if err != nil {
		return "", false, pkgerrors.Wrap(err, "checking admins")
	}
	if exist {
		return "", false, nil
	}

	raw := make([]byte, 16)
	if _, err = rand.Read(raw); err != nil {
		return "", false, pkgerrors.Wrap(err, "generating password")
	}
	pwd = hex.EncodeToString(raw)

	acct := Account{
		Login:        BootstrapLogin,
		Name:         "System Administrator",
		IsAdmin:      true,
		RegisteredAt: time.Now().UTC(),
	}
	if err = acct.SetPassword(pwd); err != nil {
		return "", false, pkgerrors.Wrap(err, "hashing password")
	}
	if err = svc.repo.CreateAccount(ctx, acct); err != nil {
		return "", false, pkgerrors.Wrap(err, "creating admin account")
	}
	svc.trail.Log(ctx, audit.TagAdminAdd, "Bootstrapped initial admin account")
	return pwd, true, nil
}

func (svc *Service) assertAdmin(ctx context.Context, login string) error {
	acct, err := svc.repo.GetAccount(ctx, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return core.ErrUserNotFound(login)
		}
		return pkgerrors.Wrap(err, "finding account")
	}
	if !acct.IsAdmin {
		return core.ErrNotAdmin(login)
	}
	return nil
}
