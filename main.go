package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/roundtable/admission"
	"github.com/wfunc/roundtable/broadcast"
	"github.com/wfunc/roundtable/config"
	"github.com/wfunc/roundtable/engine"
	"github.com/wfunc/roundtable/logger"
	"github.com/wfunc/roundtable/monitor"
	"github.com/wfunc/roundtable/narrator"
	"github.com/wfunc/roundtable/persistence"
	"github.com/wfunc/roundtable/room"
	gamerpc "github.com/wfunc/roundtable/rpc"
	"github.com/wfunc/roundtable/scheduler"
	"github.com/wfunc/roundtable/server"
	"github.com/wfunc/roundtable/services"
	"github.com/wfunc/roundtable/session"
	"github.com/wfunc/roundtable/state"
	"github.com/wfunc/roundtable/sweeper"
	"github.com/wfunc/roundtable/timer"
)

func main() {
	flags := pflag.NewFlagSet("roundtable", pflag.ExitOnError)
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])
	configPath, _ := flags.GetString("config")

	// Load configuration
	cfg, err := config.LoadConfig(configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Log.Errorf("Server stopped with error: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Log.Info("Server stopped.")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	store, err := persistence.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()
	logger.Log.Infof("Database connection successful (%s).", cfg.Database.Driver)

	mon := monitor.NewMonitor(cfg.Monitor.Namespace)
	gate := admission.NewGate(cfg.Rules, cfg.Game.EnforceTurnOrder)
	rooms := room.NewRoomManager(0)
	sessions := session.NewManager()
	broadcaster := broadcast.NewChannelBroadcaster(rooms, sessions)

	opts := []engine.Option{
		engine.WithAnnouncer(broadcaster),
		engine.WithMonitor(mon),
		engine.WithRecentLogLimit(cfg.Game.RecentLogLimit),
		engine.WithResolveOnEnqueue(cfg.Game.ResolveOnEnqueue),
	}

	var opener narrator.Opener
	if cfg.Narrator.Enabled {
		ollama := narrator.NewOllama(narrator.FromConfig(cfg.Narrator, cfg.Game.RecentLogLimit), nil)
		if err := ollama.Ping(ctx); err != nil {
			logger.Log.Warnf("Narrator at %s is not reachable, rounds use fallback narratives until it is: %v", cfg.Narrator.URL, err)
		}
		opts = append(opts, engine.WithNarrator(ollama, cfg.Narrator.Timeout))
		opener = ollama
	}

	var timers *timer.Manager
	if cfg.Game.DeadlineTimers {
		timers = timer.NewManager(0)
		opts = append(opts, engine.WithDeadlineTimers(timers))
	}

	eng := engine.New(store, gate, scheduler.New(cfg.Game.MinPlayersForRound, cfg.Game.RoundTimeout()), opts...)
	games := services.NewGameService(store, state.NewMachine(), opener, cfg.Narrator.Timeout)
	players := services.NewPlayerService(store, gate)

	rpcServer, err := gamerpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		return fmt.Errorf("create RPC server: %w", err)
	}
	if err := rpcServer.Register(gamerpc.NewGameService(eng, store, 0)); err != nil {
		return fmt.Errorf("register RPC service: %w", err)
	}
	health, err := gamerpc.NewHealthServer(cfg.Server.HealthAddress)
	if err != nil {
		return fmt.Errorf("create health server: %w", err)
	}

	sweep := sweeper.New(eng, cfg.Game.SweepInterval, cfg.Game.SweepCooldown,
		sweeper.WithMonitor(mon), sweeper.WithHealth(health))

	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, server.Deps{
		Engine:      eng,
		Games:       games,
		Players:     players,
		Rooms:       rooms,
		Sessions:    sessions,
		Broadcaster: broadcaster,
		Monitor:     mon,
		Heartbeat:   cfg.Server.HeartbeatInterval,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gameServer.Run(gctx) })
	g.Go(func() error { return health.Run(gctx) })
	g.Go(func() error {
		go rpcServer.Start()
		<-gctx.Done()
		rpcServer.Stop()
		return nil
	})
	g.Go(func() error {
		if err := sweep.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	err = g.Wait()

	// 停止定时器后等待进行中的结算落盘
	if timers != nil {
		timers.Stop()
	}
	eng.Close()
	return err
}
