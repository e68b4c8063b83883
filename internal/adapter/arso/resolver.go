package arso

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
)

// observation is the subset of observationAms_*.xml the resolver reads.
type observation struct {
	XMLName xml.Name `xml:"data"`
	MetData []struct {
		Lat string `xml:"domain_lat"`
		Lon string `xml:"domain_lon"`
	} `xml:"metData"`
}

// ObservationURL returns the metadata document of a station.
func (c *Client) ObservationURL(name string) string {
	return fmt.Sprintf("%s/observationAms_%s_latest.xml", c.observationURL, name)
}

// Resolve returns the coordinates ARSO reports for a station identifier.
// Every failure wraps domain.ErrResolve.
func (c *Client) Resolve(ctx context.Context, name string) (domain.Coordinate, error) {
	if c.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.resolveTimeout)
		defer cancel()
	}

	url := c.ObservationURL(name)
	resp, err := c.base.Get(ctx, url)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: %s: %w", domain.ErrResolve, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse
		return domain.Coordinate{}, fmt.Errorf("%w: %s: status %d", domain.ErrResolve, name, resp.StatusCode)
	}

	coord, err := parseObservation(resp.Body)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: %s: %w", domain.ErrResolve, name, err)
	}
	return coord, nil
}

func parseObservation(r io.Reader) (domain.Coordinate, error) {
	var doc observation
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return domain.Coordinate{}, fmt.Errorf("decode observation: %w", err)
	}
	if len(doc.MetData) == 0 {
		return domain.Coordinate{}, errors.New("observation has no metData")
	}

	md := doc.MetData[0]
	lat, err := strconv.ParseFloat(strings.TrimSpace(md.Lat), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("domain_lat %q: %w", md.Lat, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(md.Lon), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("domain_lon %q: %w", md.Lon, err)
	}
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return domain.Coordinate{}, fmt.Errorf("coordinates out of range: %v, %v", lat, lon)
	}
	return domain.Coordinate{Lat: lat, Lon: lon}, nil
}
