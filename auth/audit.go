package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"evalgo.org/dataflowmigrator/internal/helpers"
)

// Audit actions
const (
	ActionMigrationStart = "migration.start"
	ActionAccessDenied   = "access.denied"
)

// AuditEntry represents a single audited API call
type AuditEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action"`
	Resource  string                 `json:"resource"`
	KeyID     string                 `json:"key_id,omitempty"`
	Success   bool                   `json:"success"`
	IPAddress string                 `json:"ip_address"`
	UserAgent string                 `json:"user_agent,omitempty"`
	ErrorMsg  string                 `json:"error_message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AuditLog represents a day's worth of audit entries
type AuditLog struct {
	Date    string       `json:"date"` // YYYY-MM-DD format
	Entries []AuditEntry `json:"entries"`
}

// AuditLogger stores audit entries in one file per day
type AuditLogger struct {
	dataDir  string
	mutex    sync.RWMutex
	lockFile *flock.Flock
	now      func() time.Time
}

// NewAuditLogger creates a new audit logger below dataDir
func NewAuditLogger(dataDir string) (*AuditLogger, error) {
	auditDir := filepath.Join(dataDir, "audit")

	if err := os.MkdirAll(auditDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	return &AuditLogger{
		dataDir:  auditDir,
		lockFile: flock.New(filepath.Join(auditDir, ".audit.lock")),
		now:      time.Now,
	}, nil
}

// LogEntry appends an audit entry to the log of its day
func (l *AuditLogger) LogEntry(entry AuditEntry) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	// Other processes may append to the same day
	if err := l.lockFile.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer l.lockFile.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}

	date := entry.Timestamp.Format("2006-01-02")
	logFile := l.logFile(date)

	log := AuditLog{Date: date, Entries: []AuditEntry{}}
	if err := helpers.ReadJSON(logFile, &log); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to parse existing log: %w", err)
	}

	log.Entries = append(log.Entries, entry)

	return helpers.WriteJSONAtomic(logFile, log)
}

// GetEntriesForDate retrieves all audit entries for a specific date
func (l *AuditLogger) GetEntriesForDate(date string) ([]AuditEntry, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.entriesForDate(date)
}

// GetEntriesRange retrieves all audit entries within a date range
func (l *AuditLogger) GetEntriesRange(startDate, endDate string) ([]AuditEntry, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date: %w", err)
	}

	l.mutex.RLock()
	defer l.mutex.RUnlock()

	allEntries := []AuditEntry{}
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		entries, err := l.entriesForDate(date.Format("2006-01-02"))
		if err != nil {
			continue
		}
		allEntries = append(allEntries, entries...)
	}

	return allEntries, nil
}

// GetRecentEntries retrieves the most recent entries of the last week
func (l *AuditLogger) GetRecentEntries(limit int) ([]AuditEntry, error) {
	endDate := l.now()
	startDate := endDate.AddDate(0, 0, -7)

	entries, err := l.GetEntriesRange(startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:], nil
	}
	return entries, nil
}

// RotateOldLogs removes daily logs older than daysToKeep and returns how
// many were removed
func (l *AuditLogger) RotateOldLogs(daysToKeep int) (int, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cutoff := l.now().AddDate(0, 0, -daysToKeep)

	files, err := filepath.Glob(filepath.Join(l.dataDir, "audit_*.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to list log files: %w", err)
	}

	removed := 0
	for _, file := range files {
		base := filepath.Base(file)
		if len(base) < len("audit_2006-01-02.json") {
			continue
		}
		fileDate, err := time.Parse("2006-01-02", base[6:16])
		if err != nil || !fileDate.Before(cutoff) {
			continue
		}
		if err := os.Remove(file); err != nil {
			return removed, fmt.Errorf("failed to remove old log file: %w", err)
		}
		removed++
	}

	return removed, nil
}

// SearchEntries returns the entries matching criteria
func (l *AuditLogger) SearchEntries(criteria AuditSearchCriteria) ([]AuditEntry, error) {
	entries, err := l.GetEntriesRange(criteria.StartDate, criteria.EndDate)
	if err != nil {
		return nil, err
	}

	filtered := []AuditEntry{}
	for _, entry := range entries {
		if matchesCriteria(entry, criteria) {
			filtered = append(filtered, entry)
		}
	}
	return filtered, nil
}

// AuditSearchCriteria defines search parameters for audit logs
type AuditSearchCriteria struct {
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	Action    string
	Resource  string
	Success   *bool // nil = all
	IPAddress string
}

func (l *AuditLogger) logFile(date string) string {
	return filepath.Join(l.dataDir, fmt.Sprintf("audit_%s.json", date))
}

func (l *AuditLogger) entriesForDate(date string) ([]AuditEntry, error) {
	var log AuditLog
	if err := helpers.ReadJSON(l.logFile(date), &log); err != nil {
		if os.IsNotExist(err) {
			return []AuditEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return log.Entries, nil
}

func matchesCriteria(entry AuditEntry, criteria AuditSearchCriteria) bool {
	if criteria.Action != "" && entry.Action != criteria.Action {
		return false
	}
	if criteria.Resource != "" && entry.Resource != criteria.Resource {
		return false
	}
	if criteria.Success != nil && entry.Success != *criteria.Success {
		return false
	}
	if criteria.IPAddress != "" && entry.IPAddress != criteria.IPAddress {
		return false
	}
	return true
}
