package run

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/notionmirror/notionmirror/pkg/errors"
)

// OpenRunLog opens (appending) the log file for a run started at `now`.
// Log files are keyed by calendar date, so every run on the same day shares
// one file.
func OpenRunLog(dir string, now time.Time) (afero.File, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, errors.WithContext(err, "create log dir")
	}

	name := fmt.Sprintf("sync-%s.log", now.Format("2006-01-02"))
	file, err := fs.OpenFile(filepath.Join(dir, name),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.WithContext(err, "open log file")
	}
	return file, nil
}
