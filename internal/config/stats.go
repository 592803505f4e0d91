package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"imagemeta/internal/domain"
)

// statsWindow is the length of the rolling "last 24h" counter.
const statsWindow = 24 * time.Hour

// StatsStore persists usage counters shared by the desktop app and the CLI.
type StatsStore struct {
	path string
	now  func() time.Time
}

// NewStatsStore creates a stats store backed by path.
func NewStatsStore(path string) *StatsStore {
	return &StatsStore{path: path, now: time.Now}
}

// Load reads the counters, rolling the 24h window when it has expired.
// Missing or corrupt files start from zero.
func (s *StatsStore) Load() domain.UsageStats {
	return RollWindow(s.read(), s.now())
}

// Record adds one session's results to the counters and saves them.
func (s *StatsStore) Record(files int, elapsed time.Duration) (domain.UsageStats, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return domain.UsageStats{}, fmt.Errorf("create stats dir: %w", err)
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return domain.UsageStats{}, fmt.Errorf("lock stats: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	stats := RollWindow(s.read(), s.now())
	if files > 0 {
		stats.AllTimeProcessed += files
		stats.Last24h.FilesProcessed += files
	}
	if elapsed > 0 {
		stats.TotalProcessingTime += elapsed.Seconds()
	}

	data, err := json.MarshalIndent(stats, "", "    ")
	if err != nil {
		return domain.UsageStats{}, err
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return domain.UsageStats{}, fmt.Errorf("save stats: %w", err)
	}
	return stats, nil
}

func (s *StatsStore) read() domain.UsageStats {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return domain.UsageStats{Last24h: domain.WindowStats{Timestamp: epoch(s.now())}}
	}
	var stats domain.UsageStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return domain.UsageStats{Last24h: domain.WindowStats{Timestamp: epoch(s.now())}}
	}
	return stats
}

// RollWindow resets the 24h counter when more than a day has passed since it started.
func RollWindow(stats domain.UsageStats, now time.Time) domain.UsageStats {
	current := epoch(now)
	if stats.Last24h.Timestamp == 0 || current-stats.Last24h.Timestamp > statsWindow.Seconds() {
		stats.Last24h = domain.WindowStats{FilesProcessed: 0, Timestamp: current}
	}
	return stats
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
