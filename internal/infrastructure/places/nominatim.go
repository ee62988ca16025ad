package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"SpotFinder/internal/config"
	"SpotFinder/internal/domain"
	"SpotFinder/internal/geo"
	"SpotFinder/internal/logging"
	"SpotFinder/internal/ports"
)

const (
	// MaxResults caps the candidates returned per category search.
	MaxResults = 15
	// MinResults is the floor below which a search is reported as thin; nothing is widened.
	MinResults = 10

	defaultEndpoint  = "https://nominatim.openstreetmap.org/search"
	defaultUserAgent = "SpotFinder/1.0"
)

// NominatimSearcher implements ports.PlaceSearcher against a Nominatim-compatible /search endpoint.
type NominatimSearcher struct {
	client    *http.Client
	endpoint  string
	userAgent string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

var _ ports.PlaceSearcher = (*NominatimSearcher)(nil)

// NewNominatimSearcher wires an HTTP client; a nil client gets a timeout-bound default.
func NewNominatimSearcher(client *http.Client, cfg config.PlacesConfig, log *slog.Logger) *NominatimSearcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &NominatimSearcher{
		client:    client,
		endpoint:  endpoint,
		userAgent: userAgent,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logging.OrDiscard(log),
	}
}

// Name identifies the provider inside the registry.
func (n *NominatimSearcher) Name() string {
	return "nominatim"
}

// Search issues one bounded nearby search for the category around center.
func (n *NominatimSearcher) Search(ctx context.Context, category domain.Category, center domain.Coordinate, radiusMeters float64) ([]domain.Candidate, error) {
	if radiusMeters <= 0 {
		return nil, ports.ErrInvalidRadius
	}
	if !category.Searchable() {
		return nil, fmt.Errorf("%w: %s", ports.ErrUnknownCategory, category)
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return nil, &ports.SearchFailedError{Category: category, Cause: err}
	}

	reqURL, err := buildSearchURL(n.endpoint, category.SearchTerm(), geo.BoundingBox(center, radiusMeters))
	if err != nil {
		return nil, &ports.SearchFailedError{Category: category, Cause: err}
	}

	places, err := n.fetch(ctx, reqURL)
	if err != nil {
		return nil, &ports.SearchFailedError{Category: category, Cause: err}
	}

	candidates := make([]domain.Candidate, 0, len(places))
	for _, p := range places {
		c, ok := p.toCandidate(category)
		if !ok {
			continue
		}
		candidates = append(candidates, c)
		if len(candidates) == MaxResults {
			break
		}
	}

	if len(candidates) < MinResults {
		n.logger.Debug("thin search result", "category", category, "count", len(candidates))
	}

	return candidates, nil
}

func (n *NominatimSearcher) fetch(ctx context.Context, reqURL string) ([]nominatimPlace, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request places: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("nominatim returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("decode places: %w", err)
	}
	return places, nil
}

func buildSearchURL(base, term string, box geo.Box) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid places endpoint %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("q", term)
	query.Set("format", "jsonv2")
	query.Set("addressdetails", "1")
	query.Set("bounded", "1")
	query.Set("limit", strconv.Itoa(MaxResults))
	// left,top,right,bottom
	query.Set("viewbox", fmt.Sprintf("%s,%s,%s,%s",
		formatDegrees(box.MinLng), formatDegrees(box.MaxLat),
		formatDegrees(box.MaxLng), formatDegrees(box.MinLat)))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

type nominatimPlace struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Address     map[string]string `json:"address"`
}

func (p nominatimPlace) toCandidate(category domain.Category) (domain.Candidate, bool) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = firstSegment(p.DisplayName)
	}
	if name == "" {
		return domain.Candidate{}, false
	}

	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.Candidate{}, false
	}
	lng, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.Candidate{}, false
	}
	coord := domain.Coordinate{Lat: lat, Lng: lng}
	if !coord.Valid() {
		return domain.Candidate{}, false
	}

	address := p.formatAddress(name)
	if address == "" {
		return domain.Candidate{}, false
	}

	return domain.Candidate{
		Name:       name,
		Address:    address,
		Coordinate: coord,
		Category:   category,
	}, true
}

func (p nominatimPlace) formatAddress(name string) string {
	if len(p.Address) > 0 {
		street := strings.TrimSpace(strings.Join(nonEmpty(p.Address["house_number"], p.Address["road"]), " "))
		city := firstNonEmpty(p.Address["city"], p.Address["town"], p.Address["village"], p.Address["suburb"])
		parts := nonEmpty(street, city, p.Address["state"], p.Address["postcode"])
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}

	display := strings.TrimSpace(p.DisplayName)
	if rest, ok := strings.CutPrefix(display, name); ok {
		display = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), ","))
	}
	return display
}

func firstSegment(displayName string) string {
	head, _, _ := strings.Cut(displayName, ",")
	return strings.TrimSpace(head)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
