package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trezcool/chuo/apps/shared"
	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/storage/database"
	"github.com/trezcool/chuo/storage/database/memdb"
	"github.com/trezcool/chuo/storage/database/pgdb"
)

func main() {
	conf := core.NewConfig()
	logger := shared.NewLogger(conf, "admin")
	ctx := context.Background()

	cli := commandLine{out: os.Stdout}
	cli.validate, _ = shared.NewValidator()

	// set up the store. Migrations are not applied: `migrate` runs them.
	var store core.DocStore
	if conf.Database.Engine == shared.EngineMemory {
		store = memdb.Open(logger)
	} else {
		if conf.Database.AdminUser != "" {
			errAndDie(logger, database.CreateIfNotExist(ctx, conf))
		}
		pg, err := pgdb.Open(ctx, conf, logger)
		errAndDie(logger, err)
		cli.migrate = func(command string, args ...string) error {
			return database.Migrate(pg.DB(), command, args...)
		}
		store = pg
	}

	backends, release, err := shared.ConnectBackends(ctx, conf, logger)
	errAndDie(logger, err)
	cli.svcs = shared.NewServices(conf, store, backends, logger)

	err = cli.run(os.Args)
	release()
	_ = store.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
