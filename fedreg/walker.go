package fedreg

import (
	"context"
	"fmt"
	"log/slog"
)

// Retrier runs an operation with retry discipline. Satisfied by
// retry.Handler.
type Retrier interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// Walker traverses all search result pages for an agency, accumulating
// document metadata in upstream order.
type Walker struct {
	client   Client
	retrier  Retrier
	pageSize int
}

// NewWalker creates a Walker. pageSize is used verbatim for every page
// request; callers validate the configured range.
func NewWalker(client Client, retrier Retrier, pageSize int) *Walker {
	return &Walker{client: client, retrier: retrier, pageSize: pageSize}
}

// state is the walker's view of one traversal. Pages are 1-based;
// totalPages stays 0 until the upstream reports it.
type state struct {
	page       int
	totalPages int
	seen       int
	hasMore    bool
}

// FetchAll walks the result pages for agencySlug until the results are
// exhausted or limit documents (limit > 0) have been collected. On a page
// fetch that fails even after retries it returns the documents gathered
// so far together with the error, so callers can use the partial set.
func (w *Walker) FetchAll(ctx context.Context, agencySlug string, limit int) ([]Document, error) {
	var docs []Document
	st := state{page: 1, hasMore: true}

	for st.hasMore {
		if err := ctx.Err(); err != nil {
			return docs, err
		}

		var sp *SearchPage
		err := w.retrier.Do(ctx, func(ctx context.Context) error {
			var ferr error
			sp, ferr = w.client.SearchDocuments(ctx, agencySlug, st.page, w.pageSize)
			return ferr
		})
		if err != nil {
			return docs, fmt.Errorf("fetch page %d for %s: %w", st.page, agencySlug, err)
		}

		if len(sp.Results) == 0 {
			break
		}
		docs = append(docs, sp.Results...)
		st.seen += len(sp.Results)
		st.totalPages = sp.TotalPages

		slog.Debug("fetched search page",
			"agency", agencySlug, "page", st.page,
			"results", len(sp.Results), "total_pages", st.totalPages)

		if limit > 0 && st.seen >= limit {
			docs = docs[:limit]
			break
		}
		st.hasMore = sp.HasMore
		if st.totalPages > 0 && st.page >= st.totalPages {
			st.hasMore = false
		}
		st.page++
	}
	return docs, nil
}
