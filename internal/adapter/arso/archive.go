package arso

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
	"github.com/klauspost/compress/zip"
)

// ArchiveURL returns the location of a run's archive.
func (c *Client) ArchiveURL(run time.Time) string {
	return fmt.Sprintf("%s/nwp_%s.zip", c.archiveURL, run.UTC().Format("20060102-1504"))
}

// FetchRun downloads the archive of run and returns its members sorted by name.
// A non-success status yields domain.ErrRunUnavailable.
func (c *Client) FetchRun(ctx context.Context, run time.Time) ([]domain.Member, error) {
	if c.downloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.downloadTimeout)
		defer cancel()
	}

	url := c.ArchiveURL(run)
	start := time.Now()

	resp, err := c.base.Get(ctx, url)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrRunUnavailable, url, err)
		}
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse
		return nil, fmt.Errorf("%w: %s: status %d", domain.ErrRunUnavailable, url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(c.workDir, "nwp-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create temp archive: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	c.metrics.ArchiveBytes.Add(float64(size))
	c.metrics.ArchiveDuration.Observe(time.Since(start).Seconds())
	c.logger.Debug("archive downloaded", "url", url, "bytes", size)

	members, err := unpack(tmp, size)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", url, err)
	}
	return members, nil
}

// unpack reads every regular file of a zip archive into memory.
func unpack(r io.ReaderAt, size int64) ([]domain.Member, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}

	members := make([]domain.Member, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		data, err := readMember(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		members = append(members, domain.Member{Name: f.Name, Data: data})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	return members, nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
