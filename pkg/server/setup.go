package server

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/eplot/eprec/pkg/access"
	"github.com/eplot/eprec/pkg/config"
	"github.com/eplot/eprec/pkg/dataset/sqlite"
	"github.com/eplot/eprec/pkg/query"
	"github.com/eplot/eprec/pkg/refresh"
	"github.com/eplot/eprec/pkg/refresh/gitsync"
	"github.com/eplot/eprec/pkg/refresh/journal"
	"github.com/eplot/eprec/pkg/server/monitor"
)

// Config holds server configuration.
type Config struct {
	Port            string
	RemoteURL       string
	Branch          string
	RepoDir         string
	DBFile          string
	RefreshInterval time.Duration
	JournalDir      string
	JournalMemoryMB int64
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:            getEnv("PORT", config.DefaultPort),
		RemoteURL:       getEnv("EPREC_REMOTE_URL", config.DefaultRemoteURL),
		Branch:          getEnv("EPREC_BRANCH", config.DefaultBranch),
		RepoDir:         getEnv("EPREC_REPO_DIR", config.DefaultRepoDir),
		DBFile:          getEnv("EPREC_DB_FILE", config.DefaultDBFile),
		RefreshInterval: getEnvDuration("EPREC_REFRESH_INTERVAL", config.RefreshInterval),
		JournalDir:      getEnv("EPREC_JOURNAL_DIR", config.DefaultJournalDir),
		JournalMemoryMB: getEnvInt64("EPREC_JOURNAL_MEMORY_MB", config.DefaultJournalMemoryMB),
	}
}

// SnapshotPath returns the path of the SQLite snapshot inside the checkout.
func (c Config) SnapshotPath() string {
	return filepath.Join(c.RepoDir, c.DBFile)
}

// InitializeJournal opens the BadgerDB refresh journal.
func InitializeJournal(cfg Config) (*journal.Journal, error) {
	if err := os.MkdirAll(cfg.JournalDir, 0755); err != nil {
		return nil, err
	}
	log.Printf("Opening refresh journal at %s", cfg.JournalDir)
	j, err := journal.New(journal.Config{
		Path:        cfg.JournalDir,
		MaxMemoryMB: cfg.JournalMemoryMB,
	})
	if err != nil {
		return nil, err
	}
	log.Println("Refresh journal opened")
	return j, nil
}

// InitializeHandlers creates the query handler over the SQLite snapshot.
func InitializeHandlers(cfg Config, coord *access.Coordinator) *query.Handler {
	opener := sqlite.NewOpener(cfg.SnapshotPath())
	log.Printf("Query handler created (snapshot %s)", opener.Path())
	return query.NewHandler(coord, opener, config.EpisodeWindow)
}

// InitializeRefresh creates the git-backed scheduler and wires its
// observers. history may be nil.
func InitializeRefresh(cfg Config, coord *access.Coordinator, history refresh.Observer) (*refresh.Scheduler, *refresh.Hub, *monitor.RefreshMonitor) {
	syncer := gitsync.New(gitsync.Config{
		RemoteURL: cfg.RemoteURL,
		Branch:    cfg.Branch,
		Dir:       cfg.RepoDir,
		DBFile:    cfg.DBFile,
	})
	scheduler := refresh.NewScheduler(syncer, coord, cfg.RefreshInterval)

	refreshMonitor := monitor.NewRefreshMonitor(2*cfg.RefreshInterval, config.RefreshMaxConsecutive)
	hub := refresh.NewHub()

	scheduler.Observe(refreshMonitor)
	scheduler.Observe(hub)
	if history != nil {
		scheduler.Observe(history)
	}

	log.Printf("Refresh scheduler ready (%s@%s -> %s, every %v)", cfg.RemoteURL, cfg.Branch, cfg.RepoDir, cfg.RefreshInterval)
	return scheduler, hub, refreshMonitor
}

// InitializeStorageMonitor watches the checkout and the journal directory.
func InitializeStorageMonitor(cfg Config) *monitor.StorageMonitor {
	return monitor.NewStorageMonitor(map[string]string{
		"dataset": cfg.RepoDir,
		"journal": cfg.JournalDir,
	}, config.StorageUsageCacheDuration)
}

func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// getEnvInt64 gets an int64 from environment variable or returns default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
		log.Printf("Invalid value for %s: %q, using default %d", key, val, defaultValue)
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("6h") or plain seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.ParseInt(val, 10, 64); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Invalid value for %s: %q, using default %v", key, val, defaultValue)
	return defaultValue
}
