// Package app assembles the channel-posting bot from its parts.
package app

import (
	"context"
	"fmt"
	"time"

	corebootstrap "github.com/m3rciful/chanpost/core/bootstrap"
	corecmd "github.com/m3rciful/chanpost/core/cmd"
	coretelegram "github.com/m3rciful/chanpost/core/telegram"
	tghelpers "github.com/m3rciful/chanpost/core/telegram/helpers"
	"github.com/m3rciful/chanpost/core/telegram/router"
	"github.com/m3rciful/chanpost/internal/audit"
	"github.com/m3rciful/chanpost/internal/channels"
	"github.com/m3rciful/chanpost/internal/flows"
	"github.com/m3rciful/chanpost/internal/flows/post"
	"github.com/m3rciful/chanpost/internal/flows/registration"
	"github.com/m3rciful/chanpost/internal/handlers"
	"github.com/m3rciful/chanpost/internal/session"
	tggateway "github.com/m3rciful/chanpost/internal/telegram"
	"github.com/m3rciful/chanpost/internal/users"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"
)

// App holds the assembled bot and its infrastructure.
type App struct {
	cfg        *Config
	db         *sqlx.DB
	sessions   *session.Store
	gateway    *tggateway.Gateway
	dispatcher *flows.Dispatcher
	handlers   *handlers.Handlers
}

// Bootstrap initializes infrastructure and wires the flows together.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}

	res, err := corebootstrap.Run(corebootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	seedCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mods := corebootstrap.Modules{
		Seeders: []corebootstrap.Seeder{users.OwnerSeeder(cfg.Core.Telegram.AdminID)},
	}
	if err := corebootstrap.RunSeeders(seedCtx, res.DB, mods); err != nil {
		_ = res.DB.Close()
		return nil, fmt.Errorf("app: seeding failed: %w", err)
	}

	channelRepo := channels.NewRepository(res.DB)
	userRepo := users.NewRepository(res.DB)
	recorder := audit.NewRecorder(res.DB)

	store := session.NewStore(cfg.Posting.SessionTTL)
	gateway := tggateway.NewGateway()

	regFlow := registration.New(store, channelRepo, recorder, gateway)
	postFlow := post.New(store, channelRepo, recorder, gateway, cfg.Posting.PageSize)

	dispatcher := flows.NewDispatcher(store)
	dispatcher.Register(regFlow, session.ModeRegister)
	dispatcher.Register(postFlow, session.ModePost, session.ModeEdit)

	return &App{
		cfg:        cfg,
		db:         res.DB,
		sessions:   store,
		gateway:    gateway,
		dispatcher: dispatcher,
		handlers: handlers.New(
			cfg.Core.Telegram.AdminID,
			store,
			regFlow,
			postFlow,
			userRepo,
			channelRepo,
			recorder,
		),
	}, nil
}

// TelegramRunOptions builds the bot runtime wiring.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	a.handlers.Register(reg)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: a.cfg.Core.Telegram.AdminID,
		OnAdminReject: func(c tele.Context) error {
			return tghelpers.SendText(c, "❌ You are not allowed to use this command.")
		},
	})
	routes = append(routes, router.MessageRoutes(a.dispatcher, reg, router.TextOptions{})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))

	middlewares := coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), func(c tele.Context) error {
		return tghelpers.SendText(c, "⏳ Please wait a moment before requesting again.")
	})

	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Middlewares: middlewares,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.gateway.Bind(rt.Bot)
			a.sessions.StartReaper(ctx, 0)
			return nil
		},
		OnStop: func(_ context.Context, _ coretelegram.Runtime) error {
			return a.db.Close()
		},
	}, nil
}
