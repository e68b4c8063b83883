package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
	"github.com/couchcryptid/nwp-ingest-service/internal/observability"
)

// Registry keeps the persisted location table in step with the monitored set.
type Registry struct {
	store    LocationStore
	resolver domain.Resolver
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewRegistry creates a Registry backed by store, resolving unknown identifiers through resolver.
func NewRegistry(store LocationStore, resolver domain.Resolver, logger *slog.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{store: store, resolver: resolver, logger: logger, metrics: metrics}
}

// EnsureResolved returns the coordinates of every requested identifier that is
// persisted or could be resolved now. Identifiers that fail to resolve are
// logged and left out; they are retried on the next call.
func (r *Registry) EnsureResolved(ctx context.Context, ids []string) (map[string]domain.Location, error) {
	persisted, err := r.store.ListLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	known := make(map[string]domain.Location, len(persisted))
	for _, loc := range persisted {
		known[loc.Name] = loc
	}

	result := make(map[string]domain.Location, len(ids))
	for _, id := range ids {
		name := domain.NormalizeName(id)
		if name == "" {
			continue
		}
		if loc, ok := known[name]; ok {
			result[name] = loc
			continue
		}
		if _, done := result[name]; done {
			continue
		}

		loc, err := r.resolve(ctx, name)
		if err != nil {
			r.metrics.ResolveRequests.WithLabelValues("error").Inc()
			r.logger.Warn("location not resolved, retrying next cycle", "location", name, "error", err)
			continue
		}
		r.metrics.ResolveRequests.WithLabelValues("success").Inc()
		result[name] = loc
		r.logger.Info("location registered", "location", name, "lat", loc.Lat, "lon", loc.Lon)
	}
	return result, nil
}

func (r *Registry) resolve(ctx context.Context, name string) (domain.Location, error) {
	coord, err := r.resolver.Resolve(ctx, name)
	if err != nil {
		return domain.Location{}, err
	}
	loc := domain.Location{Name: name, Lat: coord.Lat, Lon: coord.Lon}
	if err := r.store.InsertLocation(ctx, loc); err != nil {
		return domain.Location{}, fmt.Errorf("persist location: %w", err)
	}
	return loc, nil
}
