package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ollagram/ollagram/internal/app"
	"github.com/ollagram/ollagram/internal/app/di"
	"github.com/ollagram/ollagram/internal/config"
	"github.com/ollagram/ollagram/internal/database"
	"github.com/ollagram/ollagram/internal/logger"
)

var (
	version   string
	buildTime string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "ollagram",
		Usage:   "Telegram assistant backed by a local Ollama model",
		Version: fmt.Sprintf("%s (built at: %s)", version, buildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				EnvVars: []string{"OLLAGRAM_CONFIG"},
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the Telegram bot",
				Action: serve,
			},
			{
				Name:   "console",
				Usage:  "chat with the model in the terminal",
				Action: console,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrate,
			},
		},
	}
}

func load(c *cli.Context) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewLogrusLogger(cfg.Log()), nil
}

func serve(c *cli.Context) error {
	cfg, log, err := load(c)
	if err != nil {
		return err
	}
	log.WithField("version", version).Info("Starting ollagram")

	application, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer application.Close()

	err = application.Run(c.Context)
	log.Info("Application stopped")
	return err
}

func console(c *cli.Context) error {
	cfg, log, err := load(c)
	if err != nil {
		return err
	}
	container, err := di.NewContainer(cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()

	return app.NewConsole(container, os.Stdin, os.Stdout).Run(c.Context)
}

func migrate(c *cli.Context) error {
	cfg, log, err := load(c)
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.GetDatabaseDSN(), log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(db, log); err != nil {
		return err
	}
	v, err := database.SchemaVersion(db)
	if err != nil {
		return err
	}
	log.WithField("version", v).Info("Database is up to date")
	return nil
}
