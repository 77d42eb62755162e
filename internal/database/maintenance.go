package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// MaintenanceStatus holds database size and page statistics.
type MaintenanceStatus struct {
	DBFileSize  int64 `json:"db_file_size"`
	WALFileSize int64 `json:"wal_file_size"`
	PageCount   int64 `json:"page_count"`
	PageSize    int64 `json:"page_size"`
}

// Maintenance keeps the database file healthy: the scrobble table grows
// monotonically and the WAL needs periodic checkpointing on a long-running
// server.
type Maintenance struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger
}

// NewMaintenance creates a maintenance service.
func NewMaintenance(db *sql.DB, dbPath string, logger *slog.Logger) *Maintenance {
	return &Maintenance{
		db:     db,
		dbPath: dbPath,
		logger: logger.With(slog.String("component", "maintenance")),
	}
}

// Status returns current database size statistics.
func (m *Maintenance) Status(ctx context.Context) (*MaintenanceStatus, error) {
	st := &MaintenanceStatus{}

	if info, err := os.Stat(m.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(m.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	if err := m.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&st.PageCount); err != nil {
		m.logger.Warn("reading page_count", "error", err)
	}
	if err := m.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&st.PageSize); err != nil {
		m.logger.Warn("reading page_size", "error", err)
	}
	return st, nil
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (m *Maintenance) Optimize(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}
	if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}
	m.logger.Info("optimize complete")
	return nil
}

// Vacuum runs VACUUM to rebuild the database file.
func (m *Maintenance) Vacuum(ctx context.Context) error {
	m.logger.Info("running VACUUM")
	if _, err := m.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	m.logger.Info("vacuum complete")
	return nil
}

// StartScheduler runs optimize on a fixed interval until the context is
// canceled.
func (m *Maintenance) StartScheduler(ctx context.Context, interval time.Duration) {
	m.logger.Info("maintenance scheduler started",
		slog.String("interval", interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			if err := m.Optimize(ctx); err != nil {
				m.logger.Error("scheduled optimize failed", slog.Any("error", err))
			}
		}
	}
}
