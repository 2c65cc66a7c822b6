// Package routeservice loads and caches the contest's source routes.
//
// Route files are read once at startup. Each route is identified by a hash of
// its file content, so editing a file produces a new route identifier instead
// of silently changing the criteria that already-recorded attempts were judged
// against.
package routeservice

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tkrajina/gpxgo/gpx"

	routedomain "github.com/km-mtb/kmtb-bot/app/modules/route/domain"
)

// SourceRoute is an immutable, pre-simplified reference route.
type SourceRoute struct {
	ID           string
	Name         string
	Filename     string
	DistanceM    float64
	MinDistanceM float64
	Polyline     routedomain.Polyline
}

// Store holds the loaded routes and the match configuration used to score
// activities against them. Immutable after New.
type Store struct {
	routes []SourceRoute
	byID   map[string]SourceRoute
	cfg    routedomain.MatchConfig
	logger *slog.Logger
}

// New loads every .gpx file in dir, simplifies it once, and caches the result.
// Any unreadable or degenerate route file is a configuration error that fails
// startup; per-activity processing never sees a broken route.
func New(dir string, cfg routedomain.MatchConfig, logger *slog.Logger) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read route directory %s: %w", dir, err)
	}

	s := &Store{
		cfg:    cfg,
		byID:   make(map[string]SourceRoute),
		logger: logger,
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".gpx") {
			continue
		}

		route, err := loadRoute(filepath.Join(dir, entry.Name()), cfg)
		if err != nil {
			return nil, fmt.Errorf("invalid route file %s: %w", entry.Name(), err)
		}
		route.MinDistanceM = cfg.MinDistanceM

		s.routes = append(s.routes, route)
		s.byID[route.ID] = route

		logger.Info("loaded source route",
			slog.String("route_id", route.ID),
			slog.String("name", route.Name),
			slog.Float64("distance_km", route.DistanceM/1000),
			slog.Int("points", len(route.Polyline)),
		)
	}

	if len(s.routes) == 0 {
		return nil, fmt.Errorf("no route files found in %s", dir)
	}

	// Stable iteration order for deterministic best-match tie-breaks.
	sort.Slice(s.routes, func(i, j int) bool { return s.routes[i].ID < s.routes[j].ID })

	return s, nil
}

func loadRoute(path string, cfg routedomain.MatchConfig) (SourceRoute, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceRoute{}, err
	}

	parsed, err := gpx.ParseBytes(data)
	if err != nil {
		return SourceRoute{}, fmt.Errorf("failed to parse GPX: %w", err)
	}

	var raw routedomain.Polyline
	for _, track := range parsed.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				raw = append(raw, routedomain.Point{Lat: p.Latitude, Lon: p.Longitude})
			}
		}
	}

	if len(raw) < 2 {
		return SourceRoute{}, fmt.Errorf("route has %d track points, need at least 2", len(raw))
	}

	hash := sha256.Sum256(data)

	name := parsed.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return SourceRoute{
		ID:        hex.EncodeToString(hash[:]),
		Name:      name,
		Filename:  filepath.Base(path),
		DistanceM: routedomain.LengthM(raw),
		Polyline:  routedomain.Simplify(raw, cfg.SimplifyToleranceM),
	}, nil
}

// Routes returns the cached routes in stable order.
func (s *Store) Routes() []SourceRoute {
	out := make([]SourceRoute, len(s.routes))
	copy(out, s.routes)
	return out
}

// Get returns the route with the given content id.
func (s *Store) Get(id string) (SourceRoute, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// BestMatch scores the trace against every route and returns the verdict for
// the best-scoring one, along with that route's id. The best route is reported
// even when its score is below the verification threshold so unverified
// attempts remain diagnosable.
func (s *Store) BestMatch(trace routedomain.Polyline, activityDistanceM float64) (string, routedomain.Verdict) {
	var (
		bestID      string
		bestVerdict routedomain.Verdict
		first       = true
	)

	for _, route := range s.routes {
		cfg := s.cfg
		cfg.MinDistanceM = route.MinDistanceM

		v := routedomain.Match(route.Polyline, trace, activityDistanceM, cfg)
		if first || v.SimilarityScore > bestVerdict.SimilarityScore {
			bestID = route.ID
			bestVerdict = v
			first = false
		}
	}

	return bestID, bestVerdict
}
