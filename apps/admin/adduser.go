package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(email, name, role, pwd string) error {
	ctx := context.Background()
	usrSvc := cli.svcs.Users

	usr, err := usrSvc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		nu := user.NewUser{Name: name, Email: email, Password: pwd, PasswordConfirm: pwd, Role: role}
		if err = nu.Validate(cli.validate); err != nil {
			return err
		}
		if usr, err = usrSvc.CreateAccount(ctx, nu); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "created %s (%s)\n", usr.Email, usr.Role)
		return nil
	}

	active := true
	uu := user.UpdateUser{
		Name:            name,
		Role:            core.CleanString(role, true /* lower */),
		IsActive:        &active,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if err = uu.Validate(usr, cli.validate); err != nil {
		return err
	}
	if usr, err = usrSvc.Update(ctx, usr, uu); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "updated %s (%s)\n", usr.Email, usr.Role)
	return nil
}
