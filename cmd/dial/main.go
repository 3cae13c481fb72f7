package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/adapters/contacts"
	"github.com/akorolev/Dial/internal/adapters/httpapi"
	"github.com/akorolev/Dial/internal/adapters/msgr"
	"github.com/akorolev/Dial/internal/adapters/notify"
	"github.com/akorolev/Dial/internal/adapters/rtc"
	"github.com/akorolev/Dial/internal/call"
	"github.com/akorolev/Dial/internal/config"
	"github.com/akorolev/Dial/internal/core"
	"github.com/akorolev/Dial/internal/domain"
	sig "github.com/akorolev/Dial/internal/signal"
	"github.com/akorolev/Dial/internal/store"
	"github.com/akorolev/Dial/internal/telephony"
)

// staticPerms reports the microphone state from config. Real platform
// probing belongs to whichever shell embeds the daemon.
type staticPerms struct {
	mic core.Permission
}

func (p staticPerms) Microphone() core.Permission { return p.mic }

func parsePermission(s string) core.Permission {
	switch s {
	case "granted":
		return core.PermissionGranted
	case "denied":
		return core.PermissionDenied
	default:
		return core.PermissionUndetermined
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	self := domain.PeerID(cfg.SelfID)
	if err := self.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid self_id")
	}

	completions, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open completion store")
	}
	defer completions.Close()

	peers := make([]domain.Peer, 0, len(cfg.Contacts))
	for _, ct := range cfg.Contacts {
		p, err := domain.NewPeer(domain.PeerID(ct.ID), ct.Username)
		if err != nil {
			log.Fatal().Err(err).Str("id", ct.ID).Msg("invalid contact")
		}
		peers = append(peers, *p)
	}
	book := contacts.NewBook(peers)

	perms := staticPerms{mic: parsePermission(cfg.Microphone)}

	// No native call-service bridge ships with the daemon; the selector
	// falls through to the in-app variant until an embedder wires one.
	inApp := telephony.NewInApp(telephony.NopAudioSession{}, perms)
	tel := telephony.NewSelector(nil, inApp, perms)

	// The coordinator handles envelopes the client receives, and the
	// client carries envelopes the coordinator sends. Break the cycle
	// with a late-bound handler.
	var coord *call.Coordinator
	client := msgr.NewClient(msgr.GatewayDialer(cfg.GatewayURL, self), clock.New(), func(env sig.Envelope) {
		coord.HandleEnvelope(env)
	})

	coord = call.New(call.Deps{
		Self:        self,
		Transport:   client,
		Media:       rtc.NewEngine(cfg.StunServers),
		Telephony:   tel,
		Directory:   book,
		Store:       completions,
		Events:      notify.NewLogEvents(),
		Reporter:    notify.NewLogReporter(),
		Perms:       perms,
		Clock:       clock.New(),
		RingTimeout: cfg.RingTimeout,
	})

	coordDone := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(coordDone)
	}()
	go client.Run(ctx)

	r := httpapi.SetupRouter(cfg, coord, completions)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("self", cfg.SelfID).Msg("Dial daemon started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// Wait for the coordinator to finish ending any in-flight call and
	// recording its completion before the store closes underneath it.
	<-coordDone
	log.Info().Msg("Daemon exited gracefully")
}
