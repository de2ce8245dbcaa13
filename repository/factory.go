package repository

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	seatsnatch "github.com/snatchapp/Seat-Snatch-Go"
	"github.com/snatchapp/Seat-Snatch-Go/config"
)

func New(ctx context.Context, cfg config.Database, log zerolog.Logger) (seatsnatch.Repository, error) {
	switch cfg.Type {
	case "mongo":
		log.Info().Msg("creating mongo repository")
		return newMongoRepository(ctx, cfg.Mongo)
	case "sqlite":
		log.Info().Msg("creating sqlite repository")
		return newSQLiteRepository(ctx, cfg.SQLite)
	case "firestore":
		log.Info().Msg("creating firestore repository")
		return newFirestoreRepository(ctx, cfg.Firestore)
	case "memory":
		log.Info().Msg("creating in-memory repository")
		return NewMemory(), nil
	default:
		return nil, errors.New("invalid database type")
	}
}
