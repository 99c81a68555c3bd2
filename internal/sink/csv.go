package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jpalmerr/feedrelay/internal/feed"
)

// CSVHeader is written once, when the log file is created.
var CSVHeader = []string{"entry_id", "created_at", "field1", "field2", "field3", "field4", "field5"}

// FileSink appends readings to a local CSV file.
//
// Values are written exactly as the feed delivered them, without the
// renaming or defaulting applied by [NewRow]; missing fields become empty
// cells. The file is opened in append mode for every write and closed
// before Persist returns, so several processes can share one file. Each
// write holds an exclusive flock, so only one writer sees a new file as
// empty and writes the header.
type FileSink struct {
	path   string
	logger *slog.Logger
}

// NewFileSink returns a [FileSink] writing to path.
func NewFileSink(path string, logger *slog.Logger) *FileSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{path: path, logger: logger}
}

// Name implements the loop's sink contract.
func (s *FileSink) Name() string { return "csv" }

// Path returns the target file.
func (s *FileSink) Path() string { return s.path }

// Persist appends one row for r, writing the header first if the file is new.
func (s *FileSink) Persist(_ context.Context, r feed.Reading) error {
	if err := s.append(r); err != nil {
		err = wrap(s.Name(), r.EntryID, err)
		s.logger.Error("failed to save reading to csv", "entry_id", r.EntryID, "path", s.path, "error", err.Error())
		return err
	}
	s.logger.Info("reading saved to csv", "entry_id", r.EntryID, "path", s.path)
	return nil
}

func (s *FileSink) append(r feed.Reading) (err error) {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()

	unlock, err := lockFile(f)
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer unlock()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(CSVHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	record := append([]string{strconv.FormatInt(r.EntryID, 10), r.CreatedAt}, r.RawValues()...)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("write row: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
