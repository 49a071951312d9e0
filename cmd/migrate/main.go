// Command migrate applies, inspects and reverts the studiodesk schema.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"studiodesk/internal/config"
	"studiodesk/internal/database"
	"studiodesk/internal/middleware"
)

const usageText = `usage: migrate <command>

commands:
  up             apply pending SQL migrations
  auto           run GORM AutoMigrate for every persistent model
  status         print schema mode with applied and pending migrations
  down <version> revert one applied migration`

var errUsage = errors.New(usageText)

func main() {
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usageText) }
	flag.Parse()

	if err := run(context.Background(), flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		middleware.Logger.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{})
	if err != nil {
		return err
	}
	log := middleware.Logger

	switch args[0] {
	case "up":
		m, err := database.NewMigrator(db)
		if err != nil {
			return err
		}
		n, err := m.Up(ctx)
		if err != nil {
			return err
		}
		log.Info("migrations applied", slog.Int("count", n))

	case "auto":
		cfg.DBSchemaMode = database.SchemaModeAuto
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return err
		}

	case "status":
		status, err := database.Status(ctx, db, cfg)
		if err != nil {
			return err
		}
		fmt.Printf("mode=%s env=%s sql=%t auto=%t\n", status.Mode, status.Env, status.SQL, status.AutoMigrate)
		for _, a := range status.Applied {
			fmt.Printf("  applied  %06d_%s  %s\n", a.Version, a.Name, a.AppliedAt.Format("2006-01-02 15:04"))
		}
		for _, p := range status.Pending {
			fmt.Printf("  pending  %s\n", p.ID())
		}

	case "down":
		if len(args) < 2 {
			return errUsage
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("version %q: %w", args[1], err)
		}
		m, err := database.NewMigrator(db)
		if err != nil {
			return err
		}
		return m.Down(ctx, version)

	default:
		return errUsage
	}
	return nil
}
