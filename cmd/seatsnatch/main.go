package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
	"github.com/snatchapp/Seat-Snatch-Go/catalog"
	"github.com/snatchapp/Seat-Snatch-Go/config"
	"github.com/snatchapp/Seat-Snatch-Go/monitor"
	"github.com/snatchapp/Seat-Snatch-Go/notify"
	"github.com/snatchapp/Seat-Snatch-Go/registrar"
	"github.com/snatchapp/Seat-Snatch-Go/repository"
	"github.com/snatchapp/Seat-Snatch-Go/server"
	"github.com/snatchapp/Seat-Snatch-Go/trade"
	"github.com/snatchapp/Seat-Snatch-Go/waitlist"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		log.Info().Msg("received interrupt, shutting down")
		cancel()
	}()

	cfg, err := config.ReadConfig()
	if err != nil {
		log.Panic().Err(err).Msg("failed to read config")
	}

	repo, err := repository.New(ctx, cfg.Database, log)
	if err != nil {
		log.Panic().Err(err).Msg("failed to create repository")
	}

	metrics := seatsnatch.NewMetrics()
	client := registrar.NewClient(cfg.Registrar)

	channels := []seatsnatch.Channel{
		notify.NewEmail(cfg.Notifications.EmailSmtp.Host, cfg.Notifications.EmailSmtp.Username,
			cfg.Notifications.EmailSmtp.Password, cfg.Notifications.EmailSmtp.From,
			cfg.Server.BaseURL, cfg.Notifications.EmailSmtp.Port, metrics, log),
	}
	if cfg.Notifications.Twilio.AccountSID != "" {
		channels = append(channels, notify.NewSMS(cfg.Notifications.Twilio.AccountSID,
			cfg.Notifications.Twilio.AuthToken, cfg.Notifications.Twilio.From,
			cfg.Server.BaseURL, metrics, log))
	}

	dispatcher := notify.NewDispatcher(repo, metrics, log, channels...)
	mon := monitor.New(repo, client, dispatcher, cfg.Monitor.RefreshInterval, metrics, log)
	wl := waitlist.NewService(repo, cfg.Waitlist.MaxSubscriptions, log)
	matcher := trade.NewMatcher(repo, log)

	// refresh the catalog with a dedicated command so deploys stay fast
	if len(os.Args) > 1 && os.Args[1] == "refresh-catalog" {
		loader := catalog.NewLoader(repo, client, log)
		if err := loader.Refresh(ctx); err != nil {
			log.Panic().Err(err).Msg("catalog refresh failed")
		}
		return
	}

	srv := server.NewServer(cfg.Server.Addr, repo, wl, matcher, mon, server.NewRemoteUserAuth(), metrics, log)
	if err := srv.Start(ctx); err != nil {
		log.Panic().Err(err).Msg("server failure")
	}
}
