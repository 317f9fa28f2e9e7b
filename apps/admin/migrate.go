package main

import (
	"errors"
)

var errNoMigrations = errors.New("migrations need the postgres engine")

func (cli *commandLine) runMigrations(args []string) error {
	if cli.migrate == nil {
		return errNoMigrations
	}
	return cli.migrate(args[0], args[1:]...)
}
