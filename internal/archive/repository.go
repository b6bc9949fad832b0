package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"agrispy.dev/agrispy/pkg/metrics"
)

const (
	// DefaultRecentLimit is used when a caller asks for zero readings.
	DefaultRecentLimit = 24
	// MaxRecentLimit caps a single history request.
	MaxRecentLimit = 500
)

// Repository stores and lists archived readings.
type Repository interface {
	Save(ctx context.Context, r *ArchivedReading) error
	// Recent returns up to limit readings, newest first.
	Recent(ctx context.Context, limit int) ([]ArchivedReading, error)
}

// ClampLimit maps a requested limit into [1, MaxRecentLimit], with zero or
// less selecting DefaultRecentLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}

// GormRepository is the PostgreSQL Repository.
type GormRepository struct {
	db      *gorm.DB
	metrics *metrics.ArchiveMetrics
}

// NewGormRepository wraps db. m is optional.
func NewGormRepository(db *gorm.DB, m *metrics.ArchiveMetrics) (*GormRepository, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	return &GormRepository{db: db, metrics: m}, nil
}

// Save implements Repository.
func (g *GormRepository) Save(ctx context.Context, r *ArchivedReading) error {
	defer g.time("save")()

	if err := g.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to create telemetry reading: %w", err)
	}
	return nil
}

// Recent implements Repository.
func (g *GormRepository) Recent(ctx context.Context, limit int) ([]ArchivedReading, error) {
	defer g.time("recent")()

	var readings []ArchivedReading
	err := g.db.WithContext(ctx).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(ClampLimit(limit)).
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch telemetry readings: %w", err)
	}
	return readings, nil
}

func (g *GormRepository) time(operation string) func() {
	if g.metrics == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(g.metrics.DBOperationDuration.WithLabelValues(operation))
	return func() { timer.ObserveDuration() }
}

var _ Repository = (*GormRepository)(nil)
