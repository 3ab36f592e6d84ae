package partcatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/okian/axiesales/internal/domain/model"
)

const versionLayout = "20060102"

// Release is one published version of the part data.
type Release struct {
	Version string // YYYYMMDD
	URL     string
	Parts   []model.PartRecord
}

// CDNSource finds part data releases on the origin-cards CDN. Releases are
// published under a dated path, so the source probes day by day backwards.
type CDNSource struct {
	client      *http.Client
	urlTemplate string // %s is replaced by the version
	searchDays  int
	now         func() time.Time
}

// NewCDNSource creates a source probing urlTemplate up to searchDays back.
func NewCDNSource(client *http.Client, urlTemplate string, searchDays int) *CDNSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CDNSource{client: client, urlTemplate: urlTemplate, searchDays: searchDays, now: time.Now}
}

// Latest returns the newest release dated on or after current, probing from
// today backwards. It returns nil when no such release exists. An empty
// current accepts any release inside the search window.
func (s *CDNSource) Latest(ctx context.Context, current string) (*Release, error) {
	if current != "" {
		if _, err := time.Parse(versionLayout, current); err != nil {
			return nil, fmt.Errorf("parse current version %q: %w", current, err)
		}
	}

	today := s.now().UTC()
	for i := 0; i <= s.searchDays; i++ {
		d := today.AddDate(0, 0, -i)
		version := d.Format(versionLayout)
		// YYYYMMDD compares chronologically as a string
		if current != "" && version < current {
			return nil, nil
		}

		url := fmt.Sprintf(s.urlTemplate, version)
		parts, found, err := s.fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		if found {
			return &Release{Version: version, URL: url, Parts: parts}, nil
		}
	}
	return nil, nil
}

func (s *CDNSource) fetch(ctx context.Context, url string) ([]model.PartRecord, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %w", ErrUpstream, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("%w: get %s: status %d", ErrUpstream, url, resp.StatusCode)
	}

	parts, err := decodeParts(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return parts, true, nil
}

type rawPart struct {
	PartID       string   `json:"part_id"`
	Class        string   `json:"class"`
	Name         string   `json:"name"`
	PartStage    int      `json:"part_stage"`
	StagePartIDs []string `json:"stage_part_ids"`
	Type         string   `json:"type"`
	SpecialGenes string   `json:"special_genes"`
}

// decodeParts reads the part_data.json object (keyed by part id) into
// records sorted by id.
func decodeParts(r io.Reader) ([]model.PartRecord, error) {
	var raw map[string]rawPart
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	parts := make([]model.PartRecord, 0, len(raw))
	for key, p := range raw {
		if p.PartID == "" {
			p.PartID = key
		}
		rec := model.PartRecord{
			ID:           p.PartID,
			Name:         p.Name,
			Class:        p.Class,
			Type:         p.Type,
			Stage:        p.PartStage,
			SpecialGenes: p.SpecialGenes,
		}
		if len(p.StagePartIDs) > 0 && p.StagePartIDs[0] != p.PartID {
			rec.PreviousStageID = p.StagePartIDs[0]
		}
		// shiny parts are flagged in the name only
		if strings.Contains(strings.ToLower(p.Name), "shiny") {
			rec.SpecialGenes += "_shiny"
		}
		parts = append(parts, rec)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].ID < parts[j].ID })
	return parts, nil
}
