package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/comet/internal/action"
	"github.com/matheus3301/comet/internal/api"
	"github.com/matheus3301/comet/internal/bus"
	"github.com/matheus3301/comet/internal/config"
	"github.com/matheus3301/comet/internal/inbound"
	"github.com/matheus3301/comet/internal/inbound/push"
	"github.com/matheus3301/comet/internal/lock"
	"github.com/matheus3301/comet/internal/logging"
	"github.com/matheus3301/comet/internal/outbox"
	"github.com/matheus3301/comet/internal/prefs"
	"github.com/matheus3301/comet/internal/profile"
	"github.com/matheus3301/comet/internal/status"
	"github.com/matheus3301/comet/internal/store"
	"github.com/matheus3301/comet/internal/token"
	"github.com/matheus3301/comet/internal/transport"
	"github.com/matheus3301/comet/internal/transport/bluetooth"
	"github.com/matheus3301/comet/internal/transport/sms"
	"github.com/matheus3301/comet/internal/webhook"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // nil = defaults
	Debug       bool
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLinkMachine,
			provideLock,
			provideStore,
			providePrefs,
			provideSMS,
			provideBluetooth,
			provideDispatcher,
			provideSender,
			provideResolver,
			provideEngine,
			provideVerifier,
			providePushSource,
			provideWebhook,
			provideCometService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) *config.Config {
	if p.Config == nil {
		return config.Default()
	}
	return p.Config
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, p.Debug)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLinkMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// The lock is a parameter so the database is only opened by the holder.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func providePrefs(db *store.DB, cfg *config.Config) *prefs.Prefs {
	return prefs.New(db, cfg.History.Max)
}

func provideSMS(cfg *config.Config, logger *zap.Logger) *sms.Transport {
	return sms.New(sms.Options{
		GatewayURL:      cfg.SMS.GatewayURL,
		Token:           cfg.SMS.Token,
		Sender:          cfg.SMS.Sender,
		RatePerMinute:   cfg.SMS.RatePerMinute,
		Timeout:         cfg.SMS.Timeout.Duration,
		BreakerFailures: cfg.SMS.BreakerFailures,
	}, logger.Named("sms"))
}

func provideBluetooth(cfg *config.Config, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *bluetooth.Transport {
	adapter := bluetooth.NewSysAdapter(cfg.Bluetooth.Adapter, cfg.Bluetooth.StateDir, cfg.Bluetooth.Channel)
	onFrame := func(addr, text string) {
		b.Publish(bus.Event{Kind: bus.KindInboundBluetooth, Payload: inbound.BluetoothFrame(addr, text)})
	}
	return bluetooth.New(adapter, bluetooth.Options{ConnectTimeout: cfg.Bluetooth.ConnectTimeout.Duration}, onFrame, machine, logger.Named("bluetooth"))
}

// provideDispatcher applies a saved runtime override over the configured policy.
func provideDispatcher(cfg *config.Config, p *prefs.Prefs, smsT *sms.Transport, btT *bluetooth.Transport, b *bus.Bus, logger *zap.Logger) (*transport.Dispatcher, error) {
	policy, err := cfg.TransportConfig()
	if err != nil {
		return nil, err
	}
	saved, ok, err := p.TransportConfig()
	if err != nil {
		logger.Warn("failed to read saved transport policy", zap.Error(err))
	} else if ok {
		policy = saved
	}

	notifier := transport.NotifierFunc(func(n transport.Notice) {
		b.Publish(bus.Event{Kind: bus.KindNotice, Payload: n})
	})
	registry := map[transport.Kind]transport.Transport{
		transport.SMS:       smsT,
		transport.Bluetooth: btT,
	}
	logger.Info("transport policy", zap.String("mode", string(policy.Mode)), zap.String("fallback", string(policy.Fallback)))
	return transport.NewDispatcher(policy, registry, notifier, logger.Named("dispatch")), nil
}

func provideSender(db *store.DB, d *transport.Dispatcher, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, d, b, logger.Named("outbox"))
}

func provideResolver(cfg *config.Config, logger *zap.Logger) inbound.Resolver {
	if !cfg.Actions.Enabled {
		return nil
	}
	launcher := action.NewDesktopLauncher(cfg.Actions.MapsCommand, logger.Named("launcher"))
	return action.NewResolver(launcher, logger.Named("action"))
}

func provideEngine(p *prefs.Prefs, r inbound.Resolver, b *bus.Bus, logger *zap.Logger) *inbound.Engine {
	return inbound.NewEngine(p, r, b, logger.Named("inbound"))
}

func provideVerifier(cfg *config.Config, logger *zap.Logger) (*token.Verifier, error) {
	return token.NewVerifier(cfg.Token.ProjectID, cfg.Token.PublicKeysFile, logger.Named("token"))
}

func providePushSource(cfg *config.Config, logger *zap.Logger) (push.Source, error) {
	return push.Open(push.Options{
		Driver:        cfg.Push.Driver,
		RedisAddr:     cfg.Push.RedisAddr,
		RedisPassword: cfg.Push.RedisPassword,
		Channel:       cfg.Push.Channel,
		KafkaBrokers:  cfg.Push.KafkaBrokers,
		KafkaTopic:    cfg.Push.KafkaTopic,
		KafkaGroup:    cfg.Push.KafkaGroup,
		WebSocketURL:  cfg.Push.WebSocketURL,
	}, logger.Named("push"))
}

// provideWebhook returns nil when no listen address is configured.
func provideWebhook(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *webhook.Server {
	if cfg.Webhook.Listen == "" {
		return nil
	}
	return webhook.New(cfg.Webhook.Secret, b, logger.Named("webhook"))
}

func provideCometService(p Params, pr *prefs.Prefs, sender *outbox.Sender, v *token.Verifier, d *transport.Dispatcher, btT *bluetooth.Transport, b *bus.Bus, logger *zap.Logger) *api.CometService {
	return api.NewCometService(p.ProfileName, pr, sender, v, d, btT, b, logger.Named("api"))
}

type lifecycleDeps struct {
	fx.In

	Config    *config.Config
	Server    *Server
	Lock      *lock.Lock
	DB        *store.DB
	Engine    *inbound.Engine
	Sender    *outbox.Sender
	Bluetooth *bluetooth.Transport
	Push      push.Source
	Webhook   *webhook.Server
	Bus       *bus.Bus
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	logger := d.Logger
	runCtx, cancel := context.WithCancel(context.Background())
	pushDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start the inbound engine first so no frame published below is missed.
			d.Engine.Start(runCtx)

			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			d.Sender.Start(runCtx)

			if d.Push != nil {
				go func() {
					defer close(pushDone)
					err := d.Push.Run(runCtx, func(p inbound.PushPayload) {
						d.Bus.Publish(bus.Event{Kind: bus.KindInboundPush, Payload: p})
					})
					if err != nil {
						logger.Error("push source stopped", zap.Error(err))
					}
				}()
			} else {
				close(pushDone)
			}

			if d.Webhook != nil {
				addr := d.Config.Webhook.Listen
				go func() {
					logger.Info("webhook listening", zap.String("addr", addr))
					if err := d.Webhook.Listen(addr); err != nil {
						logger.Error("webhook server error", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			if d.Webhook != nil {
				if err := d.Webhook.Shutdown(); err != nil {
					logger.Warn("error stopping webhook", zap.Error(err))
				}
			}
			if d.Push != nil {
				<-pushDone
				if err := d.Push.Close(); err != nil {
					logger.Warn("error closing push source", zap.Error(err))
				}
			}
			d.Sender.Stop()
			d.Engine.Stop()
			if err := d.Bluetooth.Close(); err != nil {
				logger.Warn("error closing bluetooth", zap.Error(err))
			}
			d.Server.Stop(ctx)
			if err := d.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
