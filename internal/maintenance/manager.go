package maintenance

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/tallyhq/tally/internal/database"
)

// Manager runs periodic housekeeping: expired-session purges and
// database optimization.
type Manager struct {
	db   *database.DB
	cron *cron.Cron
}

// New creates a maintenance manager
func New(db *database.DB) *Manager {
	return &Manager{
		db:   db,
		cron: cron.New(),
	}
}

// Start schedules the maintenance jobs and starts the scheduler.
func (m *Manager) Start() error {
	if _, err := m.cron.AddFunc("@hourly", m.purgeSessions); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc("@daily", m.optimize); err != nil {
		return err
	}

	m.cron.Start()
	log.Debug().Msg("Maintenance scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (m *Manager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Debug().Msg("Maintenance scheduler stopped")
}

func (m *Manager) purgeSessions() {
	purged, err := m.db.DeleteExpiredSessions(time.Now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge expired sessions")
		return
	}
	if purged > 0 {
		log.Info().Int64("purged", purged).Msg("Expired sessions purged")
	}
}

func (m *Manager) optimize() {
	if err := m.db.Optimize(); err != nil {
		log.Error().Err(err).Msg("Failed to optimize database")
	}
}
