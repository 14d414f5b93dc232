// Package anomaly flags addresses whose recent traffic looks abusive.
package anomaly

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"trafficwatch/internal/config"
	"trafficwatch/internal/database"
	"trafficwatch/internal/domain"
	"trafficwatch/internal/metrics"
)

// Precedence decides the stored reason when both heuristics match.
type Precedence string

const (
	// PrecedenceCombined stores "multiple" with both detail payloads.
	PrecedenceCombined Precedence = "combined"
	// PrecedenceLastWins keeps only the sensitive path verdict.
	PrecedenceLastWins Precedence = "last_wins"
)

type Settings struct {
	Window           time.Duration
	RequestThreshold int64
	SensitivePaths   []string
	Precedence       Precedence
}

func SettingsFromConfig(cfg config.AnomalyConfig) Settings {
	return Settings{
		Window:           cfg.WindowDuration(),
		RequestThreshold: cfg.RequestThreshold,
		SensitivePaths:   append([]string(nil), cfg.SensitivePaths...),
		Precedence:       Precedence(cfg.Precedence),
	}
}

type Scanner struct {
	settings Settings
	now      func() time.Time
}

func NewScanner(settings Settings) *Scanner {
	if settings.Window <= 0 {
		settings.Window = time.Hour
	}
	if settings.RequestThreshold <= 0 {
		settings.RequestThreshold = 100
	}
	if settings.Precedence != PrecedenceLastWins {
		settings.Precedence = PrecedenceCombined
	}
	return &Scanner{settings: settings, now: time.Now}
}

type finding struct {
	requestCount int64
	highVolume   bool
	paths        []string
}

// Scan evaluates both heuristics over one shared window snapshot, upserts a
// SuspicionRecord per flagged address and returns the number of active
// records afterwards. A failed upsert does not stop the scan; all such
// failures are returned joined.
func (s *Scanner) Scan(ctx context.Context) (int64, error) {
	runID := uuid.NewString()
	started := time.Now()
	now := s.now().UTC()
	since := now.Add(-s.settings.Window)

	defer func() {
		metrics.ScanDuration.Observe(time.Since(started).Seconds())
	}()

	counts, err := database.CountRequestsAbove(ctx, since, now, s.settings.RequestThreshold)
	if err != nil {
		return 0, fmt.Errorf("anomaly: high volume query: %w", err)
	}

	hits, err := database.ListPathHits(ctx, since, now, s.settings.SensitivePaths)
	if err != nil {
		return 0, fmt.Errorf("anomaly: sensitive path query: %w", err)
	}

	findings := make(map[string]*finding)
	get := func(address string) *finding {
		f, ok := findings[address]
		if !ok {
			f = &finding{}
			findings[address] = f
		}
		return f
	}
	for _, c := range counts {
		f := get(c.IPAddress)
		f.highVolume = true
		f.requestCount = c.RequestCount
	}
	for _, h := range hits {
		f := get(h.IPAddress)
		f.paths = append(f.paths, h.Path)
	}

	addresses := make([]string, 0, len(findings))
	for address := range findings {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	var errs []error
	for _, address := range addresses {
		record := s.verdict(address, findings[address], now)
		if err := database.UpsertSuspicion(ctx, &record); err != nil {
			log.Error("Failed to store suspicion", "run", runID, "address", address, "reason", record.Reason, "error", err)
			errs = append(errs, err)
			continue
		}
		metrics.ScanFlagged.WithLabelValues(string(record.Reason)).Inc()
		log.Debug("Suspicious address flagged", "run", runID, "address", address, "reason", record.Reason.Label())
	}

	active, err := database.CountActiveSuspicions(ctx)
	if err != nil {
		errs = append(errs, err)
		return 0, errors.Join(errs...)
	}
	metrics.ActiveSuspicions.Set(float64(active))

	log.Info("Anomaly scan finished",
		"run", runID,
		"flagged", len(addresses),
		"active", active,
		"failed", len(errs),
		"duration", time.Since(started).Round(time.Millisecond),
	)

	return active, errors.Join(errs...)
}

func (s *Scanner) verdict(address string, f *finding, now time.Time) domain.SuspicionRecord {
	details := domain.SuspicionDetails{DetectedAt: now}
	var reason domain.SuspicionReason

	sort.Strings(f.paths)
	sensitive := len(f.paths) > 0

	switch {
	case f.highVolume && sensitive && s.settings.Precedence == PrecedenceCombined:
		reason = domain.SuspicionMultipleViolations
		details.RequestCount = f.requestCount
		details.Threshold = s.settings.RequestThreshold
		details.PathsAccessed = f.paths
	case sensitive:
		reason = domain.SuspicionSensitivePath
		details.PathsAccessed = f.paths
	default:
		reason = domain.SuspicionHighVolume
		details.RequestCount = f.requestCount
		details.Threshold = s.settings.RequestThreshold
	}

	return domain.SuspicionRecord{
		IPAddress:    address,
		Reason:       reason,
		LastDetected: now,
		Details:      datatypes.NewJSONType(details),
	}
}
