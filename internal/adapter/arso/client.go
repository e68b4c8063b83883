// Package arso talks to the ARSO (Slovenian Environment Agency) web archive:
// it downloads ALADIN model run archives and resolves station coordinates.
package arso

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/nwp-ingest-service/internal/observability"
)

const userAgent = "nwp-ingest-service/1.0"

// Config holds the endpoints and limits of a Client.
type Config struct {
	ArchiveBaseURL     string
	ObservationBaseURL string
	WorkDir            string
	DownloadTimeout    time.Duration
	ResolveTimeout     time.Duration
}

// Client implements pipeline.ArchiveSource and domain.Resolver.
type Client struct {
	base            *BaseClient
	archiveURL      string
	observationURL  string
	workDir         string
	downloadTimeout time.Duration
	resolveTimeout  time.Duration
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// NewClient creates an ARSO client. Archives and observations share one breaker.
func NewClient(cfg Config, logger *slog.Logger, metrics *observability.Metrics, opts ...BaseClientOption) *Client {
	return &Client{
		base:            NewBaseClient(&http.Client{}, "arso", userAgent, opts...),
		archiveURL:      strings.TrimRight(cfg.ArchiveBaseURL, "/"),
		observationURL:  strings.TrimRight(cfg.ObservationBaseURL, "/"),
		workDir:         cfg.WorkDir,
		downloadTimeout: cfg.DownloadTimeout,
		resolveTimeout:  cfg.ResolveTimeout,
		logger:          logger,
		metrics:         metrics,
	}
}
