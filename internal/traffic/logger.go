// Package traffic writes the per-request audit trail.
package traffic

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"trafficwatch/internal/database"
	"trafficwatch/internal/domain"
	"trafficwatch/internal/metrics"
)

const (
	maxPathLength   = 255
	maxMethodLength = 10
)

type Entry struct {
	Address   string
	Path      string
	Method    string
	UserAgent string
	Geo       domain.Geolocation
}

// InsertFunc persists one record.
type InsertFunc func(ctx context.Context, record *domain.TrafficRecord) error

type Logger struct {
	insert InsertFunc
	now    func() time.Time
}

func NewLogger() *Logger {
	return &Logger{insert: database.InsertTrafficRecord, now: time.Now}
}

func NewLoggerWithInsert(insert InsertFunc) *Logger {
	return &Logger{insert: insert, now: time.Now}
}

// Record appends one immutable TrafficRecord stamped with the logger's
// clock in UTC. Failures are logged and returned.
func (l *Logger) Record(ctx context.Context, entry Entry) error {
	record := domain.TrafficRecord{
		IPAddress: entry.Address,
		Path:      truncate(entry.Path, maxPathLength),
		Method:    truncate(strings.ToUpper(entry.Method), maxMethodLength),
		Timestamp: l.now().UTC(),
	}
	if entry.UserAgent != "" {
		ua := entry.UserAgent
		record.UserAgent = &ua
	}
	entry.Geo.Apply(&record)

	if err := l.insert(ctx, &record); err != nil {
		metrics.TrafficLogFailures.Inc()
		log.Error("Failed to record traffic", "address", entry.Address, "path", entry.Path, "error", err)
		return err
	}
	return nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := value[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
