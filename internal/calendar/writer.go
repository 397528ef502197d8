package calendar

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"power-outage-monitor/internal/model"
)

// Writer turns event sets into calendar artifacts. Each method returns the
// path of the artifact it wrote.
type Writer interface {
	WriteCreateArtifact(p model.OutagePeriod) (string, error)
	WriteCombinedArtifact(periods []model.OutagePeriod) (string, error)
	WriteCancelArtifact(periods []model.OutagePeriod) (string, error)
	WriteDeletionSummary(periods []model.OutagePeriod) (string, error)
}

const fileTimestamp = "20060102_150405"

var unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*\s]`)

// FileWriter writes ICS files into a directory.
type FileWriter struct {
	dir  string
	name string
	loc  *time.Location
	log  zerolog.Logger
	now  func() time.Time
}

// NewFileWriter creates dir if needed and returns a writer rendering event
// times in loc.
func NewFileWriter(dir, name string, loc *time.Location, log zerolog.Logger) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &FileWriter{dir: dir, name: name, loc: loc, log: log, now: time.Now}, nil
}

func (w *FileWriter) path(suffix string) string {
	return filepath.Join(w.dir, w.now().In(w.loc).Format(fileTimestamp)+"_"+suffix)
}

func (w *FileWriter) write(path, content string) (string, error) {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// WriteCreateArtifact writes one calendar holding p's event.
func (w *FileWriter) WriteCreateArtifact(p model.OutagePeriod) (string, error) {
	content, err := Publish(w.name, []model.OutagePeriod{p}, w.loc, w.now())
	if err != nil {
		return "", err
	}
	return w.write(w.path(unsafeFileChars.ReplaceAllString(p.EventID, "_")+".ics"), content)
}

// WriteCombinedArtifact writes every period into one calendar.
func (w *FileWriter) WriteCombinedArtifact(periods []model.OutagePeriod) (string, error) {
	content, err := Publish(w.name, periods, w.loc, w.now())
	if err != nil {
		return "", err
	}
	path, err := w.write(w.path("all_power_events.ics"), content)
	if err != nil {
		return "", err
	}
	w.log.Info().Str("file", filepath.Base(path)).Int("events", len(periods)).Msg("combined calendar written")
	return path, nil
}

// WriteCancelArtifact writes a CANCEL calendar for previously emitted events.
func (w *FileWriter) WriteCancelArtifact(periods []model.OutagePeriod) (string, error) {
	path, err := w.write(w.path("cancel_events.ics"), Cancel(w.name, periods, w.now()))
	if err != nil {
		return "", err
	}
	w.log.Info().Str("file", filepath.Base(path)).Int("events", len(periods)).Msg("cancellation calendar written")
	return path, nil
}

// WriteDeletionSummary writes a plain-text list of cancelled event ids for
// calendars that ignore CANCEL requests.
func (w *FileWriter) WriteDeletionSummary(periods []model.OutagePeriod) (string, error) {
	rule := strings.Repeat("=", 50)
	var b strings.Builder
	b.WriteString("CALENDAR - MANUAL DELETION (BACKUP OPTION)\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", w.now().In(w.loc).Format("02.01.2006 15:04:05"))
	fmt.Fprintf(&b, "Total events to delete: %d\n\n", len(periods))
	b.WriteString("Event IDs to search and delete manually:\n")
	b.WriteString(strings.Repeat("-", 50) + "\n")
	for i, p := range periods {
		fmt.Fprintf(&b, "%3d. %s\n", i+1, p.EventID)
	}
	b.WriteString("\n" + rule + "\n")
	b.WriteString("Import the cancellation calendar first. If your calendar ignores it,\n")
	b.WriteString("search for each event id above and delete the event by hand.\n")
	return w.write(w.path("manual_delete.txt"), b.String())
}
