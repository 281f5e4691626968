// cmd/archeryctl is the operator tool: schema migrations, competition maintenance and
// development tokens. It talks to the database directly and acts as a recorder.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/trentd187/archery-club/internal/access"
	"github.com/trentd187/archery-club/internal/config"
	"github.com/trentd187/archery-club/internal/database"
	"github.com/trentd187/archery-club/internal/export"
	"github.com/trentd187/archery-club/internal/logging"
	"github.com/trentd187/archery-club/internal/middleware"
	"github.com/trentd187/archery-club/internal/service"
	"github.com/trentd187/archery-club/internal/store"
)

// operator is the identity maintenance commands run as.
var operator = access.Identity{Role: access.RoleRecorder}

func competitionFlag() *cli.Int64Flag {
	return &cli.Int64Flag{
		Name:     "competition",
		Aliases:  []string{"c"},
		Usage:    "competition id",
		Required: true,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Env, cfg.LogLevel)

	app := &cli.App{
		Name:  "archeryctl",
		Usage: "archery club scoring maintenance",
		Commands: []*cli.Command{
			migrateCommand(cfg),
			recomputeCommand(cfg, log),
			verifyCommand(cfg, log),
			exportCommand(cfg, log),
			tokenCommand(cfg),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// open connects to the database and returns the scoring service over it. Callers defer
// the returned close func; it releases the connection pool.
func open(cfg *config.Config, log *slog.Logger) (*service.Service, *store.GormStore, func() error, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, nil, errors.New("DATABASE_URL is required")
	}
	db, err := database.Connect(cfg.DatabaseURL, false)
	if err != nil {
		return nil, nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database handle: %w", err)
	}
	st := store.NewGormStore(db)
	return service.New(service.Deps{Store: st, Logger: log, Policy: cfg.Policy()}), st, sqlDB.Close, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Action: func(c *cli.Context) error {
					if err := database.RunMigrations(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
						return err
					}
					fmt.Println("schema is up to date")
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "print the applied schema version",
				Action: func(c *cli.Context) error {
					version, dirty, err := database.MigrationVersion(cfg.MigrationsPath, cfg.DatabaseURL)
					if err != nil {
						return err
					}
					fmt.Printf("version %d", version)
					if dirty {
						fmt.Print(" (dirty)")
					}
					fmt.Println()
					return nil
				},
			},
		},
	}
}

func recomputeCommand(cfg *config.Config, log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "recompute",
		Usage: "recompute cached totals and ranks of every entry of a competition",
		Flags: []cli.Flag{competitionFlag()},
		Action: func(c *cli.Context) error {
			svc, _, closeDB, err := open(cfg, log)
			if err != nil {
				return err
			}
			defer closeDB()
			res, err := svc.RecomputeCompetition(c.Context, operator, c.Int64("competition"))
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func verifyCommand(cfg *config.Config, log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "compare cached entry totals with totals recomputed from the arrows",
		Flags: []cli.Flag{competitionFlag()},
		Action: func(c *cli.Context) error {
			svc, _, closeDB, err := open(cfg, log)
			if err != nil {
				return err
			}
			defer closeDB()
			report, err := svc.VerifyCompetition(c.Context, operator, c.Int64("competition"))
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
			if !report.OK() {
				return cli.Exit(fmt.Sprintf("%d of %d entries disagree with their arrows", len(report.Mismatches), report.Checked), 2)
			}
			return nil
		},
	}
}

func exportCommand(cfg *config.Config, log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "write competition results to an Excel workbook",
		Flags: []cli.Flag{
			competitionFlag(),
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output .xlsx path", Required: true},
		},
		Action: func(c *cli.Context) error {
			svc, _, closeDB, err := open(cfg, log)
			if err != nil {
				return err
			}
			defer closeDB()
			res, err := svc.Results(c.Context, operator, c.Int64("competition"))
			if err != nil {
				return err
			}
			f, err := os.Create(c.String("out"))
			if err != nil {
				return err
			}
			if err := export.Standings(f, res); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Printf("wrote %d categories to %s\n", len(res.Categories), c.String("out"))
			return nil
		},
	}
}

func tokenCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "mint a bearer token for an existing club member (development only)",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "member", Aliases: []string{"m"}, Usage: "club member id", Required: true},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime", Value: 24 * time.Hour},
		},
		Action: func(c *cli.Context) error {
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required")
			}
			if cfg.IsProduction() {
				return errors.New("refusing to mint tokens with ENV=production")
			}
			_, st, closeDB, err := open(cfg, logging.Discard())
			if err != nil {
				return err
			}
			defer closeDB()
			member, err := st.GetMember(c.Context, c.Int64("member"))
			if err != nil {
				return err
			}
			token, err := middleware.IssueToken(cfg.JWTSecret, member.ID, c.Duration("ttl"))
			if err != nil {
				return err
			}
			id := middleware.IdentityOf(member)
			fmt.Fprintf(os.Stderr, "member %d (%s) role=%s archer=%d\n", member.ID, member.FullName, id.Role, id.ArcherID)
			fmt.Println(token)
			return nil
		},
	}
}
