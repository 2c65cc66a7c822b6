// Package bundb owns the bun database handle and the repository wiring on
// top of it.
package bundb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	participantdb "github.com/km-mtb/kmtb-bot/app/modules/participant/repositories"
	verificationdb "github.com/km-mtb/kmtb-bot/app/modules/verification/repositories"
	"github.com/km-mtb/kmtb-bot/config"
)

// DBService bundles the repositories sharing one connection pool.
type DBService struct {
	ParticipantDB  *participantdb.ParticipantDBImpl
	VerificationDB *verificationdb.VerificationDBImpl
	db             *bun.DB
}

// GetDB returns the underlying database handle.
func (s *DBService) GetDB() *bun.DB {
	return s.db
}

// NewBunDBService connects to Postgres and wires the repositories.
func NewBunDBService(ctx context.Context, cfg config.PostgresConfig) (*DBService, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	if err := sqldb.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())

	db.RegisterModel(
		(*participantdb.Participant)(nil),
		(*participantdb.Credential)(nil),
		(*verificationdb.ActivityAttempt)(nil),
		(*verificationdb.ApprovedActivity)(nil),
		(*verificationdb.LeaderboardEntry)(nil),
		(*verificationdb.AuditLog)(nil),
	)

	return &DBService{
		ParticipantDB:  &participantdb.ParticipantDBImpl{DB: db},
		VerificationDB: &verificationdb.VerificationDBImpl{DB: db},
		db:             db,
	}, nil
}

// Close releases the connection pool.
func (s *DBService) Close() error {
	return s.db.Close()
}
