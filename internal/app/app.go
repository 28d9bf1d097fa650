package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"todoapp/internal/auth"
	"todoapp/internal/config"
	"todoapp/internal/eventbus"
	"todoapp/internal/httpapi"
	"todoapp/internal/mailer"
	"todoapp/internal/maintenance"
	rtsup "todoapp/internal/runtime/supervisor"
	"todoapp/internal/storage"
	"todoapp/internal/todo"
	"todoapp/internal/tracing"
	logx "todoapp/pkg/logx"
)

// Version is reported in traces and /healthz. Set with -ldflags.
var Version = "dev"

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	trace *tracing.Provider

	storageDriver string
	mailKey       string

	mail  *mailer.Service
	auth  *auth.Service
	todos *todo.Service
	maint *maintenance.Service
	http  *httpapi.Service
}

func NewApp(cfgPath string) (*App, error) {
	return newApp(config.NewConfigManager(cfgPath))
}

func newApp(cfgm *config.ConfigManager) (*App, error) {
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	tp, err := tracing.Setup(mapTracingConfig(cfg, Version))
	if err != nil {
		return nil, err
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	bus := eventbus.New()

	mcfg, err := mapMailConfig(cfg)
	if err != nil {
		return nil, err
	}
	mailLog := log.With(logx.String("comp", "mailer"))
	mail := mailer.New(mcfg, newMailTransport(cfg, mailLog), mailLog, bus)

	acfg, err := mapAuthConfig(cfg)
	if err != nil {
		return nil, err
	}
	authSvc := auth.New(acfg, store, mail, bus, log.With(logx.String("comp", "auth")))
	todoSvc := todo.New(store, bus, log.With(logx.String("comp", "todo")))

	maintCfg, err := mapMaintenanceConfig(cfg)
	if err != nil {
		return nil, err
	}
	maint := maintenance.New(maintCfg, log.With(logx.String("comp", "maintenance")), bus)
	if err := maint.Register(maintenance.JobPurgeCodes, maintenance.PurgeCodes(store, time.Now)); err != nil {
		return nil, err
	}
	if c, ok := store.(storage.Compactor); ok {
		if err := maint.Register(maintenance.JobCompactStore, maintenance.CompactStore(c)); err != nil {
			return nil, err
		}
	}

	a := &App{
		cfgm:          cfgm,
		log:           log,
		logs:          logSvc,
		bus:           bus,
		store:         store,
		trace:         tp,
		storageDriver: sc.Driver,
		mailKey:       mailTransportKey(cfg),
		mail:          mail,
		auth:          authSvc,
		todos:         todoSvc,
		maint:         maint,
	}

	hcfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.http = httpapi.New(hcfg, httpapi.Deps{
		Auth:   authSvc,
		Todos:  todoSvc,
		Health: a.health,
	}, log.With(logx.String("comp", "httpapi")))

	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Addr returns the bound API address once the listener is up.
func (a *App) Addr() string { return a.http.Addr() }

func (a *App) health(context.Context) map[string]any {
	out := map[string]any{
		"version": Version,
		"storage": a.storageDriver,
		"mail": map[string]any{
			"enabled": a.mail.Enabled(),
			"recent":  len(a.mail.Snapshot()),
		},
	}
	if a.maint.Enabled() {
		out["jobs"] = a.maint.Jobs()
	}
	sups := map[string]rtsup.Counters{}
	if a.sup != nil {
		sups["app"] = a.sup.Counters()
	}
	if s := a.http.Supervisor(); s != nil {
		sups["http"] = s.Counters()
	}
	if s := a.mail.Supervisor(); s != nil {
		sups["mailer"] = s.Counters()
	}
	out["supervisors"] = sups
	return out
}

func (a *App) validate(_ context.Context, cfg *config.Config) error {
	var errs []error
	if _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapHTTPConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapAuthConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapMailConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if mc, err := mapMaintenanceConfig(cfg); err != nil {
		errs = append(errs, err)
	} else if err := a.maint.Validate(mc); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	if a.mail.Enabled() {
		a.mail.Start(run)
	}
	if a.maint.Enabled() {
		a.maint.Start(run)
	}
	a.http.Start(run)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started", logx.String("version", Version))
	return nil
}

// applyConfig fans a committed config out to the running services.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if rr := config.RestartRequired(sections); len(rr) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(rr, ",")))
	}

	a.logs.Apply(mapLoggingConfig(newCfg))

	if ac, err := mapAuthConfig(newCfg); err != nil {
		a.log.Warn("invalid auth config; keeping previous", logx.Err(err))
	} else {
		a.auth.Apply(ac)
	}

	if mc, err := mapMailConfig(newCfg); err != nil {
		a.log.Warn("invalid mail config; keeping previous", logx.Err(err))
	} else {
		if key := mailTransportKey(newCfg); key != a.mailKey {
			a.mail.SetTransport(newMailTransport(newCfg, a.log.With(logx.String("comp", "mailer"))))
			a.mailKey = key
		}
		prev := a.mail.Enabled()
		a.mail.Apply(mc)
		switch {
		case prev && !mc.Enabled:
			a.log.Info("mailer disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.mail.Stop(stopCtx)
			cancel()
		case !prev && mc.Enabled:
			a.log.Info("mailer enabled via config")
			a.mail.Start(ctx)
		}
	}

	if mc, err := mapMaintenanceConfig(newCfg); err != nil {
		a.log.Warn("invalid maintenance config; keeping previous", logx.Err(err))
	} else {
		a.maint.Apply(ctx, mc)
	}

	if hc, err := mapHTTPConfig(newCfg); err != nil {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	} else {
		a.http.Reconfigure(ctx, hc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	a.sup.Cancel()

	// step bounds a shutdown step so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			if took := time.Since(start); took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("http", 5*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("maintenance", 2*time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	step("mailer", 3*time.Second, func(c context.Context) error { a.mail.Stop(c); return nil })
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })
	step("tracing", 2*time.Second, func(c context.Context) error { return a.trace.Shutdown(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
