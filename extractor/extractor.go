// Package extractor turns document metadata into plain text content. It
// tries the full-text XML rendition first, then falls back to the rendered
// HTML page run through readability extraction.
package extractor

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"

	"fedreg-fetcher/docurl"
	"fedreg-fetcher/fedreg"
	"fedreg-fetcher/retry"
)

// Source tags where a document's content came from.
type Source string

const (
	SourcePrimary   Source = "primary"   // full-text XML rendition
	SourceSecondary Source = "secondary" // rendered HTML page
	SourceNone      Source = "none"      // nothing retrievable
)

var (
	// ErrNoSources means no content URL could be built for the document.
	ErrNoSources = errors.New("extractor: no content sources available")
	// ErrContentTooShort means the fetched text fell below the minimum
	// plausible document length.
	ErrContentTooShort = errors.New("extractor: content below minimum length")
)

// maxFetchBytes bounds how much of any content response is read.
const maxFetchBytes = 16 << 20

var whitespaceRE = regexp.MustCompile(`\s+`)

// Config controls content validation and the fallback path.
type Config struct {
	MinContentLength int
	MaxContentLength int
	EnableFallback   bool
	UserAgent        string
}

// DefaultConfig returns extraction limits suited to Federal Register
// documents. Anything under 50 characters is an error page or a stub,
// not a regulatory document.
func DefaultConfig() Config {
	return Config{
		MinContentLength: 50,
		MaxContentLength: 1_000_000,
		EnableFallback:   true,
	}
}

// RequestGate admits outbound requests. Satisfied by ratelimit.Limiter.
type RequestGate interface {
	Acquire(ctx context.Context) error
}

// Retrier runs an operation with retry discipline. Satisfied by
// retry.Handler.
type Retrier interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// Extractor fetches and extracts document content.
type Extractor struct {
	httpc   *http.Client
	gate    RequestGate
	retrier Retrier
	cfg     Config
}

// New creates an Extractor. gate may be nil for unpaced use.
func New(gate RequestGate, retrier Retrier, timeout time.Duration, cfg Config) *Extractor {
	return &Extractor{
		httpc:   &http.Client{Timeout: timeout},
		gate:    gate,
		retrier: retrier,
		cfg:     cfg,
	}
}

// Extract retrieves the content for doc. It mutates doc's Attempts and
// LastError fields as it works. When neither source URL can be built it
// returns SourceNone without issuing any HTTP request.
func (e *Extractor) Extract(ctx context.Context, doc *fedreg.Document) (string, Source, error) {
	xmlURL := docurl.XMLURL(doc)
	htmlURL := docurl.HTMLURL(doc)
	if xmlURL == "" && htmlURL == "" {
		doc.LastError = ErrNoSources.Error()
		return "", SourceNone, ErrNoSources
	}

	var lastErr error
	if xmlURL != "" {
		text, err := e.extractXML(ctx, doc, xmlURL)
		if err == nil {
			return text, SourcePrimary, nil
		}
		lastErr = err
		doc.LastError = err.Error()
		slog.Debug("primary extraction failed",
			"document", doc.DocumentNumber, "url", xmlURL, "error", err)
		if ctx.Err() != nil {
			return "", SourceNone, err
		}
	}

	if htmlURL != "" && e.cfg.EnableFallback {
		text, err := e.extractHTML(ctx, doc, htmlURL)
		if err == nil {
			return text, SourceSecondary, nil
		}
		lastErr = err
		doc.LastError = err.Error()
		slog.Debug("secondary extraction failed",
			"document", doc.DocumentNumber, "url", htmlURL, "error", err)
	}

	if lastErr == nil {
		lastErr = ErrNoSources
	}
	return "", SourceNone, lastErr
}

// extractXML fetches the XML rendition and strips it to text. Only the
// fetch is retried; a parse or length failure on a good response will not
// change on a second download.
func (e *Extractor) extractXML(ctx context.Context, doc *fedreg.Document, rawURL string) (string, error) {
	body, err := e.fetch(ctx, doc, rawURL)
	if err != nil {
		return "", err
	}
	text, err := xmlToText(body)
	if err != nil {
		return "", fmt.Errorf("parse xml for %s: %w", doc.DocumentNumber, err)
	}
	return e.validate(text)
}

// extractHTML fetches the rendered page and extracts the article text.
func (e *Extractor) extractHTML(ctx context.Context, doc *fedreg.Document, rawURL string) (string, error) {
	body, err := e.fetch(ctx, doc, rawURL)
	if err != nil {
		return "", err
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %s: %w", rawURL, err)
	}
	fragment := ""
	if article, rerr := readability.FromReader(bytes.NewReader(body), pageURL); rerr == nil {
		fragment = article.Content
	}
	if strings.TrimSpace(fragment) == "" {
		// Readability found no article node; strip the whole page instead.
		fragment = string(body)
	}
	text, err := htmlToText(fragment)
	if err != nil {
		return "", fmt.Errorf("strip html for %s: %w", doc.DocumentNumber, err)
	}
	return e.validate(text)
}

// fetch downloads rawURL through the rate gate with retries, decoding the
// body to UTF-8 per the response charset. Each attempt counts against the
// document.
func (e *Extractor) fetch(ctx context.Context, doc *fedreg.Document, rawURL string) ([]byte, error) {
	var body []byte
	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		doc.Attempts++
		if e.gate != nil {
			if err := e.gate.Acquire(ctx); err != nil {
				return err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if e.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", e.cfg.UserAgent)
		}
		resp, err := e.httpc.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return &retry.StatusError{
				URL:        rawURL,
				StatusCode: resp.StatusCode,
				RetryAfter: fedreg.ParseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}
		reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
		if err != nil {
			return fmt.Errorf("decode charset for %s: %w", rawURL, err)
		}
		body, err = io.ReadAll(io.LimitReader(reader, maxFetchBytes))
		if err != nil {
			return fmt.Errorf("read body of %s: %w", rawURL, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// validate normalizes whitespace and applies the length limits. Limits
// count characters, not bytes: the fetch path decodes arbitrary charsets
// to UTF-8, so multi-byte runes are routine. Oversized text is truncated
// on a rune boundary, undersized text is an error.
func (e *Extractor) validate(text string) (string, error) {
	text = strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
	runes := utf8.RuneCountInString(text)
	if runes < e.cfg.MinContentLength {
		return "", fmt.Errorf("%w: got %d chars, need %d",
			ErrContentTooShort, runes, e.cfg.MinContentLength)
	}
	if e.cfg.MaxContentLength > 0 && runes > e.cfg.MaxContentLength {
		text = truncateRunes(text, e.cfg.MaxContentLength)
	}
	return text, nil
}

// truncateRunes cuts s after n runes without splitting a multi-byte rune.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// xmlToText walks the token stream and joins every character data node.
func xmlToText(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if cd, ok := tok.(xml.CharData); ok {
			b.Write(cd)
			b.WriteByte(' ')
		}
	}
	return b.String(), nil
}

var blockTags = []string{
	"p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6",
	"tr", "td", "th", "section", "article", "blockquote",
}

// htmlToText strips markup from an HTML fragment. Block-level tags get a
// leading space first so adjacent paragraphs do not run together.
func htmlToText(fragment string) (string, error) {
	for _, tag := range blockTags {
		fragment = strings.ReplaceAll(fragment, "<"+tag, " <"+tag)
		fragment = strings.ReplaceAll(fragment, "</"+tag+">", "</"+tag+"> ")
	}
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}
	return gq.Text(), nil
}
