package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"

	participantmigrations "github.com/km-mtb/kmtb-bot/app/modules/participant/repositories/migrations"
	verificationmigrations "github.com/km-mtb/kmtb-bot/app/modules/verification/repositories/migrations"
	"github.com/km-mtb/kmtb-bot/config"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	pgdb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.DSN)))
	db := bun.NewDB(pgdb, pgdialect.New())
	defer db.Close()

	migrators := map[string]*migrate.Migrator{
		"participant":  migrate.NewMigrator(db, participantmigrations.Migrations),
		"verification": migrate.NewMigrator(db, verificationmigrations.Migrations),
	}

	cliApp := &cli.App{
		Name: "bun",
		Commands: []*cli.Command{
			newMigrateCommand(migrators),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newMigrateCommand(migrators map[string]*migrate.Migrator) *cli.Command {
	// participant tables carry the foreign keys verification tables point at,
	// so order matters.
	order := []string{"participant", "verification"}

	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create migration tables",
				Action: func(c *cli.Context) error {
					for _, name := range order {
						fmt.Printf("Initializing migrations for module: %s\n", name)
						if err := migrators[name].Init(c.Context); err != nil {
							return err
						}
					}
					return nil
				},
			},
			{
				Name:  "migrate",
				Usage: "migrate database",
				Action: func(c *cli.Context) error {
					for _, name := range order {
						group, err := migrators[name].Migrate(c.Context)
						if err != nil {
							return err
						}
						if group.IsZero() {
							fmt.Printf("No new migrations to run for module: %s\n", name)
						} else {
							fmt.Printf("Migrated module: %s to %s\n", name, group)
						}
					}
					return nil
				},
			},
			{
				Name:  "rollback",
				Usage: "rollback the last migration group",
				Action: func(c *cli.Context) error {
					for i := len(order) - 1; i >= 0; i-- {
						name := order[i]
						group, err := migrators[name].Rollback(c.Context)
						if err != nil {
							return err
						}
						if group.IsZero() {
							fmt.Printf("No groups to roll back for module: %s\n", name)
						} else {
							fmt.Printf("Rolled back module: %s to %s\n", name, group)
						}
					}
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "print migration status",
				Action: func(c *cli.Context) error {
					for _, name := range order {
						ms, err := migrators[name].MigrationsWithStatus(c.Context)
						if err != nil {
							return err
						}
						fmt.Printf("%s: %s (unapplied: %s)\n", name, ms, ms.Unapplied())
					}
					return nil
				},
			},
		},
	}
}
