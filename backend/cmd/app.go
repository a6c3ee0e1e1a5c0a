package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	httpServer "github.com/adwski/tandem/backend/server/http"
	websocketServer "github.com/adwski/tandem/backend/server/websocket"
	"github.com/adwski/tandem/backend/service"
	store "github.com/adwski/tandem/backend/storage/memory"
	sw "github.com/adwski/tandem/backend/switch"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		apiListenAddr  = fs.StringP("api-listen-addr", "a", ":8080", "api listen address")
		wsListenAddr   = fs.StringP("ws-listen-addr", "w", ":8888", "websocket signaling listen address")
		logLevel       = fs.StringP("log-level", "l", "info", "log level")
		reapInterval   = fs.DurationP("reap-interval", "r", time.Minute, "idle room sweep interval")
		idleTimeout    = fs.DurationP("idle-timeout", "i", time.Hour, "room is closed after this long without signaling")
		sendBuffer     = fs.Int("send-buffer", 32, "outbound event buffer size per connection")
		stunServers    = fs.StringArray("stun-server", []string{"stun:stun.l.google.com:19302"}, "ICE server url advertised to clients (repeatable)")
		debugEndpoints = fs.Bool("debug-endpoints", false, "expose matchmaking state dump at /api/debug/state")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	switchboard := sw.NewSwitch(&logger)
	svc := service.NewService(service.Config{
		Queue:       store.NewQueue(),
		Rooms:       store.NewRooms(nil),
		Notifier:    switchboard,
		Logger:      &logger,
		IdleTimeout: *idleTimeout,
	})
	reaper := service.NewReaper(service.ReaperConfig{
		Sweeper:  svc,
		Logger:   &logger,
		Interval: *reapInterval,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:         &logger,
		Stats:          svc,
		ListenAddr:     *apiListenAddr,
		ICEServers:     *stunServers,
		DebugEndpoints: *debugEndpoints,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:           &logger,
		SignalingService: svc,
		Switch:           switchboard,
		ListenAddr:       *wsListenAddr,
		SendBuffer:       *sendBuffer,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(3)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)
	go reaper.Run(ctx, wg)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
