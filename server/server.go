package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
	"github.com/snatchapp/Seat-Snatch-Go/monitor"
	"github.com/snatchapp/Seat-Snatch-Go/trade"
	"github.com/snatchapp/Seat-Snatch-Go/waitlist"
)

type Server struct {
	addr     string
	repo     seatsnatch.Repository
	waitlist *waitlist.Service
	matcher  *trade.Matcher
	monitor  *monitor.Monitor
	auth     seatsnatch.AuthProvider
	metrics  *seatsnatch.Metrics
	log      zerolog.Logger
}

func NewServer(addr string, repo seatsnatch.Repository, w *waitlist.Service, m *trade.Matcher,
	mon *monitor.Monitor, auth seatsnatch.AuthProvider, metrics *seatsnatch.Metrics, log zerolog.Logger) Server {
	return Server{addr, repo, w, m, mon, auth, metrics, log.With().Str("component", "server").Logger()}
}

func (s Server) Start(ctx context.Context) error {
	r := httprouter.New()

	// register routes
	r.GET("/ping", s.pingHandler())
	r.GET("/status", s.statusHandler())
	r.PUT("/waitlist/:classid", s.subscribeHandler())
	r.DELETE("/waitlist/:classid", s.unsubscribeHandler())
	r.GET("/matches/:courseid", s.matchesHandler())
	r.POST("/matches/:courseid/contact", s.contactHandler())
	r.POST("/pull/:classid", s.pullHandler())
	r.POST("/course/:courseid/pull", s.pullCourseHandler())
	r.PUT("/current/:courseid/:classid", s.setCurrentHandler())
	r.DELETE("/current/:courseid", s.clearCurrentHandler())
	r.PUT("/user/contact", s.userContactHandler())
	r.PUT("/user/autoresub", s.autoResubHandler())
	r.GET("/user/activity/:kind", s.activityHandler())
	// This endpoint is meant to be called by a cron job
	r.GET("/trigger", s.triggerHandler())

	srv := http.Server{Addr: s.addr, Handler: r}
	s.log.Info().Str("addr", s.addr).Msg("listening")

	// start server, respecting context cancelation
	errChan := make(chan error)
	go func() { errChan <- srv.ListenAndServe() }()
	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.log.Info().Msg("gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		s.log.Info().Msg("server shutdown complete")
	}

	return nil
}
