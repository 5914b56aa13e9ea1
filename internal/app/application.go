package app

import (
	"context"
	"errors"

	"github.com/ollagram/ollagram/internal/app/di"
	"github.com/ollagram/ollagram/internal/commands"
	"github.com/ollagram/ollagram/internal/commands/ask"
	"github.com/ollagram/ollagram/internal/commands/chats"
	"github.com/ollagram/ollagram/internal/commands/exercise"
	"github.com/ollagram/ollagram/internal/commands/mode"
	"github.com/ollagram/ollagram/internal/commands/start"
	"github.com/ollagram/ollagram/internal/config"
	"github.com/ollagram/ollagram/internal/core"
	"github.com/ollagram/ollagram/internal/logger"
	"github.com/ollagram/ollagram/internal/scheduler"
)

type Application struct {
	Logger    logger.Logger
	cfg       *config.Config
	bot       *core.Bot
	di        *di.Container
	scheduler *scheduler.Scheduler
}

func New(cfg *config.Config, log logger.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	container, err := di.NewContainer(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := container.WithTelegram(); err != nil {
		container.Close()
		return nil, err
	}
	log.Info("DI Container created")

	app := &Application{
		Logger: log,
		cfg:    cfg,
		di:     container,
		bot: core.NewBot(
			container.BotClient,
			container.Queue,
			log.WithField("component", "bot"),
			container.DB,
			cfg.Telegram(),
			container.Localizer,
		),
		scheduler: scheduler.New(container.DB, container.MemoryCache, cfg.Cleanup(), log.WithField("component", "scheduler")),
	}
	app.registerCommands()
	return app, nil
}

func (a *Application) registerCommands() {
	askCmd := ask.New(a.di)
	compressCmd := chats.NewCompress(a.di)
	exerciseCmd := exercise.New(a.di)

	for _, cmd := range []commands.Command{
		start.New(a.di),
		start.NewHelp(a.di),
		chats.NewNew(a.di),
		chats.NewSelect(a.di),
		chats.NewShow(a.di),
		chats.NewDelete(a.di),
		chats.NewRename(a.di),
		chats.NewHistory(a.di),
		compressCmd,
		askCmd,
		ask.NewCancel(a.di),
		mode.New(a.di),
		exerciseCmd,
	} {
		a.bot.RegisterCommand(cmd)
	}
	a.di.Queue.Register(askCmd, compressCmd, exerciseCmd)
}

// Run serves Telegram until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	a.Logger.WithField("model", a.di.Model.Model()).Info("Starting application")
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	err := a.bot.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Application) Close() error {
	return a.di.Close()
}

// TextCommands are the commands usable outside Telegram.
func TextCommands(di *di.Container) []commands.TextResponder {
	return []commands.TextResponder{
		start.NewHelp(di),
		chats.NewNew(di),
		chats.NewSelect(di),
		chats.NewShow(di),
		chats.NewDelete(di),
		chats.NewRename(di),
		chats.NewHistory(di),
		chats.NewCompress(di),
		mode.New(di),
	}
}
