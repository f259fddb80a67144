package build

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Cloudsky01/gh-ipabuild/pkg/models"
)

// LogsAPI downloads the zip bundle of a run's logs
type LogsAPI interface {
	GetRunLogs(ctx context.Context, repo models.Repository, runID int64) ([]byte, error)
}

// LogFile is one member of a run's log archive
type LogFile struct {
	Name    string
	Content []byte
}

// ExtractLogs decompresses a log archive in memory, skipping directories
func ExtractLogs(data []byte) ([]LogFile, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open log archive: %w", err)
	}

	files := make([]LogFile, 0, len(zr.File))
	for _, file := range zr.File {
		if file.FileInfo().IsDir() {
			continue
		}
		content, err := readZipFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file.Name, err)
		}
		files = append(files, LogFile{Name: file.Name, Content: content})
	}
	return files, nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

type LogFetcher struct {
	api    LogsAPI
	out    io.Writer
	logger *slog.Logger
}

func NewLogFetcher(api LogsAPI, out io.Writer, logger *slog.Logger) *LogFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogFetcher{api: api, out: out, logger: logger}
}

// Fetch prints every file of the run's log bundle. The returned error is for
// reporting only; callers must not let it replace the build outcome.
func (f *LogFetcher) Fetch(ctx context.Context, repo models.Repository, runID int64) error {
	f.logger.Info("fetching workflow logs", "run", runID)

	data, err := f.api.GetRunLogs(ctx, repo, runID)
	if err != nil {
		f.logger.Warn("could not fetch workflow logs", "run", runID, "error", err)
		return fmt.Errorf("failed to fetch logs for run %d: %w", runID, err)
	}

	files, err := ExtractLogs(data)
	if err != nil {
		f.logger.Warn("could not extract workflow logs", "run", runID, "error", err)
		return err
	}

	for _, lf := range files {
		fmt.Fprintf(f.out, "==> %s <==\n", lf.Name)
		f.out.Write(lf.Content)
		if len(lf.Content) > 0 && lf.Content[len(lf.Content)-1] != '\n' {
			fmt.Fprintln(f.out)
		}
	}
	return nil
}
