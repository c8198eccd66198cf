// Package retriever orchestrates a retrieval run: walk the search pages
// for an agency, build content URLs, consult the cache, extract content,
// and record one outcome per document no matter what failed along the way.
package retriever

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fedreg-fetcher/extractor"
	"fedreg-fetcher/fedreg"
	"fedreg-fetcher/retry"
)

// MetadataLister walks search pages for an agency. Satisfied by
// fedreg.Walker.
type MetadataLister interface {
	FetchAll(ctx context.Context, agencySlug string, limit int) ([]fedreg.Document, error)
}

// ContentExtractor fetches and extracts a document's content. Satisfied
// by extractor.Extractor.
type ContentExtractor interface {
	Extract(ctx context.Context, doc *fedreg.Document) (string, extractor.Source, error)
}

// CachedDocument is a previously retrieved document.
type CachedDocument struct {
	DocumentNumber  string
	Title           string
	AgencySlug      string
	PublicationDate string
	Content         string
	Source          string
	ContentLength   int
}

// DocumentCache stores retrieved content across runs. Satisfied by an
// adapter over storage.Store.
type DocumentCache interface {
	Get(documentNumber string) (*CachedDocument, error)
	Put(doc *CachedDocument) error
}

// Outcome is the final record for one document. Exactly one Outcome is
// produced per metadata record; it is never mutated after being appended.
type Outcome struct {
	DocumentNumber string
	Title          string
	AgencySlug     string
	Success        bool
	Content        string
	Source         extractor.Source
	Error          string
	ErrorClass     string
	Attempts       int
	Elapsed        time.Duration
	FromCache      bool
}

// Stats aggregates one agency run. BySource breaks successes down by
// where their content came from; failures never carry a source (a failed
// extraction is always SourceNone), so their breakdown is ByErrorClass.
type Stats struct {
	RunID        string
	AgencySlug   string
	Attempted    int
	Succeeded    int
	Failed       int
	BySource     map[string]int
	ByErrorClass map[string]int
	Incomplete   bool
	StartedAt    time.Time
	Elapsed      time.Duration
}

// AgencyResult pairs an agency's outcomes with its run statistics.
type AgencyResult struct {
	AgencySlug string
	Outcomes   []Outcome
	Stats      Stats
}

// Retriever runs document retrieval for agencies.
type Retriever struct {
	lister    MetadataLister
	extractor ContentExtractor
	cache     DocumentCache // nil disables caching

	now func() time.Time
}

// New creates a Retriever. cache may be nil.
func New(lister MetadataLister, ext ContentExtractor, cache DocumentCache) *Retriever {
	return &Retriever{lister: lister, extractor: ext, cache: cache, now: time.Now}
}

// Retrieve fetches up to limit documents for one agency. A document
// failure never aborts the run; a metadata walk failure or cancellation
// yields the outcomes gathered so far with Stats.Incomplete set.
func (r *Retriever) Retrieve(ctx context.Context, agencySlug string, limit int) ([]Outcome, Stats) {
	stats := Stats{
		RunID:        uuid.NewString(),
		AgencySlug:   agencySlug,
		BySource:     map[string]int{},
		ByErrorClass: map[string]int{},
		StartedAt:    r.now(),
	}

	docs, err := r.lister.FetchAll(ctx, agencySlug, limit)
	if err != nil {
		stats.Incomplete = true
		slog.Warn("metadata walk incomplete",
			"agency", agencySlug, "documents", len(docs), "error", err)
	}

	outcomes := make([]Outcome, 0, len(docs))
	for i := range docs {
		if ctx.Err() != nil {
			stats.Incomplete = true
			break
		}
		outcome := r.retrieveOne(ctx, &docs[i])
		outcomes = append(outcomes, outcome)
		stats.Attempted++
		if outcome.Success {
			stats.Succeeded++
			stats.BySource[string(outcome.Source)]++
		} else {
			stats.Failed++
			stats.ByErrorClass[outcome.ErrorClass]++
		}
	}

	stats.Elapsed = r.now().Sub(stats.StartedAt)
	slog.Info("agency run finished",
		"agency", agencySlug, "run_id", stats.RunID,
		"attempted", stats.Attempted, "succeeded", stats.Succeeded,
		"failed", stats.Failed, "incomplete", stats.Incomplete,
		"elapsed", stats.Elapsed)
	return outcomes, stats
}

func (r *Retriever) retrieveOne(ctx context.Context, doc *fedreg.Document) Outcome {
	start := r.now()
	outcome := Outcome{
		DocumentNumber: doc.DocumentNumber,
		Title:          doc.Title,
		AgencySlug:     doc.AgencySlug,
	}

	if r.cache != nil {
		cached, err := r.cache.Get(doc.DocumentNumber)
		if err != nil {
			slog.Warn("cache lookup failed", "document", doc.DocumentNumber, "error", err)
		} else if cached != nil && cached.Content != "" {
			outcome.Success = true
			outcome.Content = cached.Content
			outcome.Source = extractor.Source(cached.Source)
			outcome.FromCache = true
			outcome.Elapsed = r.now().Sub(start)
			return outcome
		}
	}

	content, source, err := r.extractor.Extract(ctx, doc)
	outcome.Source = source
	outcome.Attempts = doc.Attempts
	outcome.Elapsed = r.now().Sub(start)
	if err != nil {
		outcome.Error = err.Error()
		outcome.ErrorClass = errorClass(err)
		return outcome
	}
	outcome.Success = true
	outcome.Content = content

	if r.cache != nil {
		put := &CachedDocument{
			DocumentNumber:  doc.DocumentNumber,
			Title:           doc.Title,
			AgencySlug:      doc.AgencySlug,
			PublicationDate: doc.PublicationDate,
			Content:         content,
			Source:          string(source),
			ContentLength:   len(content),
		}
		if err := r.cache.Put(put); err != nil {
			slog.Warn("cache write failed", "document", doc.DocumentNumber, "error", err)
		}
	}
	return outcome
}

// RetrieveAll runs the agencies on a bounded worker pool. Outcomes keep
// per-agency order; agencies themselves finish in whatever order the pool
// allows, so results are returned in input order regardless.
func (r *Retriever) RetrieveAll(ctx context.Context, agencies []string, limit, workers int) []AgencyResult {
	if workers < 1 {
		workers = 1
	}
	results := make([]AgencyResult, len(agencies))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, agency := range agencies {
		wg.Add(1)
		go func(i int, agency string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes, stats := r.Retrieve(ctx, agency, limit)
			results[i] = AgencyResult{AgencySlug: agency, Outcomes: outcomes, Stats: stats}
		}(i, agency)
	}
	wg.Wait()
	return results
}

// errorClass maps an extraction error to the class reported in outcomes
// and run statistics.
func errorClass(err error) string {
	if err == nil {
		return ""
	}
	// Content defects will not improve on a re-download.
	if errors.Is(err, extractor.ErrNoSources) || errors.Is(err, extractor.ErrContentTooShort) {
		return retry.ClassPermanent.String()
	}
	return retry.Classify(err).String()
}
