// Package app assembles the client pipeline from configuration: storage,
// the rate-limited HTTP client, the service facade, the cache and both page
// controllers sharing one session.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"github.com/seenimoa/macrocal/internal/cache"
	"github.com/seenimoa/macrocal/internal/calendar"
	"github.com/seenimoa/macrocal/internal/client"
	"github.com/seenimoa/macrocal/internal/config"
	"github.com/seenimoa/macrocal/internal/controller"
	"github.com/seenimoa/macrocal/internal/filter"
	"github.com/seenimoa/macrocal/internal/infra"
	"github.com/seenimoa/macrocal/internal/notify"
	"github.com/seenimoa/macrocal/internal/storage"
)

// noticeBuffer is how many recent toasts are kept for the view server.
const noticeBuffer = 20

// App is one wired client run.
type App struct {
	Config  *config.Config
	Log     logrus.FieldLogger
	Store   storage.Store
	Client  *client.Client
	API     *calendar.API
	Cache   *cache.Manager
	Session *controller.Session
	Notices *notify.Buffer
	Events  *controller.Events
	Summary *controller.Summary

	notifier notify.Notifier
}

// New wires the pipeline. Notifications go to the internal buffer and to n
// when given; without n they are logged.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, n notify.Notifier) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}

	buf := notify.NewBuffer(noticeBuffer)
	var notifier notify.Notifier = notify.Multi{buf, notify.Log{Logger: log}}
	if n != nil {
		notifier = notify.Multi{buf, n}
	}

	// Validate has already accepted the tag.
	filter.SetLocale(language.Make(cfg.Display.Locale))

	c := client.New(client.Options{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		Headers:   cfg.API.Headers,
		UserAgent: cfg.API.UserAgent,
		Limiter:   infra.NewRateLimiter(cfg.API.RateLimit, cfg.API.RateBurst),
		Notifier:  notifier,
		Logger:    log.WithField("component", "client"),
		Online:    connectivity(cfg, log),
	})
	api := calendar.New(c)
	cm := cache.New(store, log)
	sess := controller.NewSession()

	deps := controller.Deps{
		API:      api,
		Cache:    cm,
		Store:    store,
		Session:  sess,
		Notifier: notifier,
		Logger:   log,
		Options:  controller.OptionsFromConfig(cfg),
	}

	log.WithFields(logrus.Fields{
		"base_url": cfg.API.BaseURL,
		"storage":  cfg.Storage.Backend,
	}).Debug("pipeline assembled")

	return &App{
		Config:  cfg,
		Log:     log,
		Store:   store,
		Client:  c,
		API:     api,
		Cache:   cm,
		Session: sess,
		Notices: buf,
		Events:  controller.NewEvents(deps),
		Summary: controller.NewSummary(deps),

		notifier: notifier,
	}, nil
}

// CheckServer runs the launch-time status check.
func (a *App) CheckServer(ctx context.Context) (controller.ServerInfo, error) {
	return controller.CheckServer(ctx, a.API, a.Session, a.notifier, a.Config.API.StatusTimeout)
}

// Close stops the controllers and releases the store.
func (a *App) Close() error {
	a.Events.Close()
	return a.Store.Close()
}

// connectivity returns the client's pre-call probe, or nil when the check
// is disabled or the base URL names no probeable host.
func connectivity(cfg *config.Config, log logrus.FieldLogger) func() bool {
	if !cfg.API.ConnectivityCheck {
		return nil
	}
	addr, ok := infra.ProbeAddr(cfg.API.BaseURL)
	if !ok {
		log.WithField("base_url", cfg.API.BaseURL).Warn("connectivity check disabled, no probeable host")
		return nil
	}
	return infra.NewReachability(addr, cfg.API.StatusTimeout, cfg.API.ConnectivityTTL).Online
}
