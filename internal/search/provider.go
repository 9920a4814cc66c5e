// Package search runs a global search across every section a user can see.
package search

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pitabwire/repairdesk/internal/section"
	"github.com/pitabwire/repairdesk/model"
)

// Provider status values reported in the response meta.
const (
	StatusOK      = "ok"
	StatusTimeout = "timeout"
	StatusError   = "error"
)

// MinQueryLength is the shortest query accepted.
const MinQueryLength = 2

// Options narrows and pages a search.
type Options struct {
	Section  string
	Page     int
	PageSize int
}

// Observer is told how long each section search took and how it ended.
type Observer func(section, status string, d time.Duration)

// SearchProvider orchestrates global search across all data sections.
type SearchProvider struct {
	sections           *section.Registry
	timeoutPerProvider time.Duration
	maxResultsDefault  int
	observe            Observer
	matcher            func(s *section.Section, query string) []model.SearchResult
}

// NewSearchProvider creates a new SearchProvider.
func NewSearchProvider(sections *section.Registry, timeoutPerProvider time.Duration, maxResultsPerProvider int) *SearchProvider {
	if timeoutPerProvider <= 0 {
		timeoutPerProvider = 3 * time.Second
	}
	if maxResultsPerProvider <= 0 {
		maxResultsPerProvider = 50
	}
	sp := &SearchProvider{
		sections:           sections,
		timeoutPerProvider: timeoutPerProvider,
		maxResultsDefault:  maxResultsPerProvider,
	}
	sp.matcher = sp.match
	return sp
}

// SetObserver installs o. It must be called before the first search.
func (sp *SearchProvider) SetObserver(o Observer) { sp.observe = o }

// providerResult collects the outcome of searching one section.
type providerResult struct {
	order    int
	section  string
	results  []model.SearchResult
	status   string
	duration time.Duration
}

// Search matches query against the search keys of every data section caps
// may see. Sections are searched concurrently, each under its own timeout.
func (sp *SearchProvider) Search(ctx context.Context, caps model.CapabilitySet, query string, opts Options) (model.SearchResponse, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return model.SearchResponse{}, model.NewBadRequestError("Search query must be at least 2 characters")
	}

	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.PageSize > 50 {
		opts.PageSize = 50
	}
	if opts.Page <= 0 {
		opts.Page = 1
	}

	var eligible []*section.Section
	for _, s := range sp.sections.Visible(caps) {
		if !s.HasData() || !s.Table().Searchable() {
			continue
		}
		if opts.Section != "" && s.ID() != opts.Section {
			continue
		}
		eligible = append(eligible, s)
	}

	start := time.Now()
	results := sp.executeProviders(ctx, eligible, query)

	var merged []model.SearchResult
	providers := make(map[string]string, len(results))
	for _, r := range results {
		providers[r.section] = r.status
		merged = append(merged, r.results...)
	}

	// Stable, so equal scores keep navigation order.
	slices.SortStableFunc(merged, func(a, b model.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	total := len(merged)
	offset := (opts.Page - 1) * opts.PageSize
	if offset >= len(merged) {
		merged = []model.SearchResult{}
	} else {
		merged = merged[offset:min(offset+opts.PageSize, len(merged))]
	}

	return model.SearchResponse{
		Data: model.SearchPayload{
			Results:    merged,
			TotalCount: total,
			Query:      query,
		},
		Meta: map[string]any{
			"providers":     providers,
			"query_time_ms": time.Since(start).Milliseconds(),
		},
	}, nil
}

// executeProviders searches every section concurrently and returns the
// outcomes in navigation order.
func (sp *SearchProvider) executeProviders(ctx context.Context, sections []*section.Section, query string) []providerResult {
	if len(sections) == 0 {
		return nil
	}

	ch := make(chan providerResult, len(sections))
	var wg sync.WaitGroup
	for i, s := range sections {
		wg.Go(func() {
			r := sp.executeProvider(ctx, s, query)
			r.order = i
			ch <- r
		})
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	results := make([]providerResult, 0, len(sections))
	for r := range ch {
		if sp.observe != nil {
			sp.observe(r.section, r.status, r.duration)
		}
		results = append(results, r)
	}
	slices.SortFunc(results, func(a, b providerResult) int { return a.order - b.order })
	return results
}

// executeProvider searches one section, giving up when its timeout expires.
func (sp *SearchProvider) executeProvider(ctx context.Context, s *section.Section, query string) providerResult {
	ctx, cancel := context.WithTimeout(ctx, sp.timeoutPerProvider)
	defer cancel()

	start := time.Now()
	done := make(chan []model.SearchResult, 1)
	go func() {
		done <- sp.matcher(s, query)
	}()

	select {
	case hits := <-done:
		return providerResult{section: s.ID(), results: hits, status: StatusOK, duration: time.Since(start)}
	case <-ctx.Done():
		status := StatusError
		if ctx.Err() == context.DeadlineExceeded {
			status = StatusTimeout
		}
		return providerResult{section: s.ID(), status: status, duration: time.Since(start)}
	}
}

// match maps a section's matching rows to results. The first column gives
// the title and the second the subtitle, both as rendered in the table.
// Rows whose title starts with the query score higher.
func (sp *SearchProvider) match(s *section.Section, query string) []model.SearchResult {
	tbl := s.Table()
	rows := tbl.Search(s.Rows(), query)
	if len(rows) > sp.maxResultsDefault {
		rows = rows[:sp.maxResultsDefault]
	}

	def := s.Definition()
	columns := tbl.Columns()
	lowered := strings.ToLower(query)
	results := make([]model.SearchResult, 0, len(rows))
	for i, row := range rows {
		id := row.ID(tbl.IDField())
		r := model.SearchResult{
			ID:      id,
			Section: s.ID(),
			Icon:    def.Navigation.Icon,
			Route:   strings.TrimSuffix(def.Navigation.Route, "/") + "/" + id,
		}
		if len(columns) > 0 {
			r.Title = tbl.RenderCell(columns[0], row).Text
		}
		if len(columns) > 1 {
			r.Subtitle = tbl.RenderCell(columns[1], row).Text
		}

		// Position score: 1.0 at top, 0.5 at bottom.
		r.Score = 1.0
		if len(rows) > 1 {
			r.Score = 1.0 - float64(i)/float64(len(rows))*0.5
		}
		if strings.HasPrefix(strings.ToLower(r.Title), lowered) {
			r.Score++
		}
		results = append(results, r)
	}
	return results
}
