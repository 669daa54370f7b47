package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"service_entry_reporter/internal/domain/report"

	"github.com/sirupsen/logrus"
)

// ErrWrite signals a filesystem failure while producing an artifact. The
// category is not marked done and is eligible for retry on the next run.
var ErrWrite = errors.New("artifact write failed")

// ArtifactPaths are the deterministic locations for one (category, day).
type ArtifactPaths struct {
	Temp   string
	Final  string
	Marker string
}

// FileTracker manages artifact files and done markers for a single run day.
// Either the final file or the done marker counts as proof of completion:
// a CSV can be deleted downstream while the marker persists, or vice versa.
type FileTracker struct {
	baseDir    string
	dateString string
	logger     *logrus.Logger
}

func NewFileTracker(baseDir string, runDate time.Time, logger *logrus.Logger) *FileTracker {
	return &FileTracker{
		baseDir:    baseDir,
		dateString: report.DateString(runDate),
		logger:     logger,
	}
}

// Paths returns the temp, final and done-marker paths for a category.
// Categories live in their own subdirectory with an upper-cased filename
// suffix; the empty category uses the flat single-report layout.
func (t *FileTracker) Paths(cat report.Category) ArtifactPaths {
	dir := t.baseDir
	suffix := ""
	if cat != "" {
		dir = filepath.Join(t.baseDir, string(cat))
		suffix = "_" + strings.ToUpper(string(cat))
	}
	return ArtifactPaths{
		Temp:   filepath.Join(dir, fmt.Sprintf("_%s_tmp_QH_ServiceEntry%s.csv", t.dateString, suffix)),
		Final:  filepath.Join(dir, fmt.Sprintf("%s_QH_ServiceEntry%s.csv", t.dateString, suffix)),
		Marker: filepath.Join(dir, fmt.Sprintf("_DONE_%s%s.txt", t.dateString, suffix)),
	}
}

// Done reports whether the category was already produced on the run day.
func (t *FileTracker) Done(cat report.Category) (bool, error) {
	p := t.Paths(cat)
	for _, path := range []string{p.Final, p.Marker} {
		if _, err := os.Stat(path); err == nil {
			return true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("failed to check %s: %w", path, err)
		}
	}
	return false, nil
}

// Write produces the CSV artifact atomically: the full file is written to
// the temp path, then renamed onto the final path, so a partially written
// file is never observed as complete.
func (t *FileTracker) Write(cat report.Category, rs *report.ResultSet) (report.OutputArtifact, error) {
	p := t.Paths(cat)
	if err := os.MkdirAll(filepath.Dir(p.Final), 0o755); err != nil {
		return report.OutputArtifact{}, fmt.Errorf("%w: creating %s: %v", ErrWrite, filepath.Dir(p.Final), err)
	}
	if err := writeCSV(p.Temp, rs); err != nil {
		os.Remove(p.Temp)
		return report.OutputArtifact{}, err
	}
	if err := os.Rename(p.Temp, p.Final); err != nil {
		os.Remove(p.Temp)
		return report.OutputArtifact{}, fmt.Errorf("%w: renaming onto %s: %v", ErrWrite, p.Final, err)
	}

	t.logger.Infof("Wrote %d rows to %s", rs.RowCount(), p.Final)
	return report.OutputArtifact{
		Category:   cat,
		DateString: t.dateString,
		RowCount:   rs.RowCount(),
		FilePath:   p.Final,
	}, nil
}

// MarkDone writes the sentinel marker for a completed category. Content is
// arbitrary; presence is the signal.
func (t *FileTracker) MarkDone(cat report.Category) error {
	p := t.Paths(cat)
	if err := os.WriteFile(p.Marker, []byte("done\n"), 0o644); err != nil {
		return fmt.Errorf("%w: writing marker %s: %v", ErrWrite, p.Marker, err)
	}
	return nil
}

func writeCSV(path string, rs *report.ResultSet) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrWrite, path, err)
	}
	w := csv.NewWriter(file)
	err = w.Write(rs.Columns)
	if err == nil {
		err = w.WriteAll(rs.Rows) // flushes
	}
	if err == nil {
		err = w.Error()
	}
	if err != nil {
		file.Close()
		return fmt.Errorf("%w: writing %s: %v", ErrWrite, path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrWrite, path, err)
	}
	return nil
}
