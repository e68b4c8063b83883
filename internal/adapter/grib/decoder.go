// Package grib decodes GRIB archive members with the ecCodes grib_dump tool.
package grib

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
)

// Decoder implements pipeline.Decoder by running `grib_dump -j` on each member.
type Decoder struct {
	command string
	workDir string
	logger  *slog.Logger
}

// NewDecoder creates a Decoder invoking command (normally "grib_dump").
// Members are staged as temporary files under workDir.
func NewDecoder(command, workDir string, logger *slog.Logger) *Decoder {
	return &Decoder{command: command, workDir: workDir, logger: logger}
}

// Decode returns the datasets of one GRIB member in decoder order.
func (d *Decoder) Decode(ctx context.Context, data []byte) ([]domain.Dataset, error) {
	tmp, err := os.CreateTemp(d.workDir, "member-*.grib")
	if err != nil {
		return nil, fmt.Errorf("create temp member: %w", err)
	}
	defer func(name string) {
		if err := os.Remove(name); err != nil {
			d.logger.Warn("remove temp member failed", "path", name, "error", err)
		}
	}(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp member: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp member: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.command, "-j", tmp.Name())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s -j: %w: %s", d.command, err, strings.TrimSpace(stderr.String()))
	}

	datasets, err := ParseDump(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	d.logger.Debug("member decoded", "bytes", len(data), "datasets", len(datasets))
	return datasets, nil
}
