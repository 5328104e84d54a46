package ledger

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// compressAfterDays is how old a daily summary gets before it moves into a
// weekly archive
const compressAfterDays = 7

// RotateReport lists what a rotation did
type RotateReport struct {
	Compressed      []string `json:"compressed"`
	RemovedArchives []string `json:"removed_archives"`
	RemovedRuns     int      `json:"removed_runs"`
}

// RotateOldLogs compresses daily summaries older than a week into weekly
// tar.gz archives and removes archives and run files past the retention
// period.
func (l *Ledger) RotateOldLogs() (*RotateReport, error) {
	now := l.now()
	compressBefore := startOfDay(now.AddDate(0, 0, -compressAfterDays))
	retainAfter := startOfDay(now.AddDate(0, 0, -l.retentionDays))
	report := &RotateReport{Compressed: []string{}, RemovedArchives: []string{}}

	files, err := filepath.Glob(filepath.Join(l.dataDir, "migration_*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}

	weeklyLogs := make(map[string][]string)
	for _, file := range files {
		day, ok := summaryDate(file)
		if !ok || !day.Before(compressBefore) {
			continue
		}
		year, week := day.ISOWeek()
		weekKey := fmt.Sprintf("%d-W%02d", year, week)
		weeklyLogs[weekKey] = append(weeklyLogs[weekKey], file)
	}

	for weekKey, dailyFiles := range weeklyLogs {
		weeklyArchive := filepath.Join(l.archiveDir, fmt.Sprintf("migration_%s.tar.gz", weekKey))
		if err := appendToArchive(weeklyArchive, dailyFiles); err != nil {
			logrus.WithError(err).WithField("week", weekKey).Warn("Failed to compress weekly archive")
			continue
		}
		for _, dailyFile := range dailyFiles {
			if err := os.Remove(dailyFile); err != nil {
				logrus.WithError(err).WithField("file", dailyFile).Warn("Failed to remove daily log")
				continue
			}
			report.Compressed = append(report.Compressed, filepath.Base(dailyFile))
		}
	}

	archives, err := filepath.Glob(filepath.Join(l.archiveDir, "migration_*-W*.tar.gz"))
	if err != nil {
		return nil, fmt.Errorf("failed to list weekly archives: %w", err)
	}
	for _, archive := range archives {
		info, err := os.Stat(archive)
		if err != nil || !info.ModTime().Before(retainAfter) {
			continue
		}
		if err := os.Remove(archive); err != nil {
			logrus.WithError(err).WithField("archive", archive).Warn("Failed to remove old weekly archive")
			continue
		}
		report.RemovedArchives = append(report.RemovedArchives, filepath.Base(archive))
	}

	runs, err := filepath.Glob(filepath.Join(l.runsDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}
	for _, runFile := range runs {
		id := strings.TrimSuffix(filepath.Base(runFile), ".json")
		if l.isActive(id) {
			continue
		}
		info, err := os.Stat(runFile)
		if err != nil || !info.ModTime().Before(retainAfter) {
			continue
		}
		if err := os.Remove(runFile); err == nil {
			report.RemovedRuns++
		}
	}

	return report, nil
}

func (l *Ledger) isActive(runID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.activeRuns[runID]
	return ok
}

// summaryDate parses the day out of migration_YYYY-MM-DD.json
func summaryDate(file string) (time.Time, bool) {
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), "migration_"), ".json")
	day, err := time.ParseInLocation("2006-01-02", name, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// appendToArchive writes files into a tar.gz archive, keeping any entries an
// earlier rotation already put there
func appendToArchive(archivePath string, files []string) error {
	existing, err := readArchive(archivePath)
	if err != nil {
		return err
	}

	tmp := archivePath + ".tmp"
	outFile, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	gzWriter := gzip.NewWriter(outFile)
	tarWriter := tar.NewWriter(gzWriter)

	writeErr := func() error {
		added := make(map[string]bool, len(files))
		for _, file := range files {
			added[filepath.Base(file)] = true
		}
		for _, entry := range existing {
			if added[entry.header.Name] {
				continue
			}
			if err := tarWriter.WriteHeader(entry.header); err != nil {
				return err
			}
			if _, err := tarWriter.Write(entry.data); err != nil {
				return err
			}
		}
		for _, file := range files {
			if err := addFileToTar(tarWriter, file); err != nil {
				return fmt.Errorf("failed to add file %s to archive: %w", file, err)
			}
		}
		if err := tarWriter.Close(); err != nil {
			return err
		}
		return gzWriter.Close()
	}()

	if closeErr := outFile.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmp)
		return writeErr
	}
	return os.Rename(tmp, archivePath)
}

type tarEntry struct {
	header *tar.Header
	data   []byte
}

func readArchive(archivePath string) ([]tarEntry, error) {
	f, err := os.Open(archivePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer gz.Close()

	var entries []tarEntry
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive %s: %w", archivePath, err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		entries = append(entries, tarEntry{header: header, data: data})
	}
}

// addFileToTar adds a single file to a tar archive
func addFileToTar(tarWriter *tar.Writer, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = filepath.Base(filename)

	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, file)
	return err
}
