// Package admin implements the operator commands of authkeeper-admin:
// creating an account with a chosen role and changing the role of an
// existing account.
package admin

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var ErrUsage = errors.New(`usage:
  authkeeper-admin [server flags] create-account -email EMAIL [-role USER|ADMIN]
  authkeeper-admin [server flags] change-role -email EMAIL -role USER|ADMIN`)

type AccountService interface {
	Register(ctx context.Context, email, password string, role models.Role) (*models.Account, error)
	ChangeRole(ctx context.Context, email string, role models.Role) (*models.Account, error)
}

type App struct {
	svc AccountService
	out io.Writer
}

func NewApp(svc AccountService, out io.Writer) *App {
	return &App{svc: svc, out: out}
}

// Commands are the subcommand names; everything before one of them belongs
// to the server configuration.
var Commands = []string{"create-account", "change-role"}

// SplitArgs returns the subcommand and its arguments.
func SplitArgs(args []string) (string, []string, error) {
	for i, a := range args {
		for _, c := range Commands {
			if a == c {
				return c, args[i+1:], nil
			}
		}
	}
	return "", nil, ErrUsage
}

func (a *App) Execute(ctx context.Context, args []string) error {
	cmd, rest, err := SplitArgs(args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "account email")
	role := fs.String("role", "", "account role")
	if err := fs.Parse(rest); err != nil {
		return fmt.Errorf("%w\n%v", ErrUsage, err)
	}
	if *email == "" {
		return ErrUsage
	}

	switch cmd {
	case "create-account":
		return a.createAccount(ctx, *email, *role)
	default:
		if *role == "" {
			return ErrUsage
		}
		return a.changeRole(ctx, *email, *role)
	}
}

func (a *App) createAccount(ctx context.Context, email, roleName string) error {
	role, err := models.ParseRole(roleName)
	if err != nil {
		return err
	}

	password, err := a.getPassword("Enter password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := a.getPassword("Repeat password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(password, confirm) {
		return errors.New("passwords do not match")
	}

	account, err := a.svc.Register(ctx, email, string(password), role)
	if err != nil {
		return fmt.Errorf("create account: %s", common.MessageOf(err))
	}

	fmt.Fprintf(a.out, "created account %s (%s) with role %s\n", account.Email, account.ID, account.Role)
	return nil
}

func (a *App) changeRole(ctx context.Context, email, roleName string) error {
	role, err := models.ParseRole(roleName)
	if err != nil {
		return err
	}

	account, err := a.svc.ChangeRole(ctx, email, role)
	if err != nil {
		return fmt.Errorf("change role: %s", common.MessageOf(err))
	}

	fmt.Fprintf(a.out, "account %s now has role %s\n", account.Email, account.Role)
	return nil
}

// getPassword reads without echo. The caller wipes the result.
func (a *App) getPassword(prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(a.out, prompt); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(pw)) == 0 {
		common.WipeByteArray(pw)
		return nil, errors.New("password must not be empty")
	}
	return pw, nil
}
