// Package docurl builds Federal Register document URLs from document
// numbers and publication dates. It performs no I/O; refusal is reported
// as an empty string so callers can decide how to degrade.
package docurl

import (
	"fmt"
	"regexp"
	"strings"

	"fedreg-fetcher/fedreg"
)

const siteBaseURL = "https://www.federalregister.gov"

// The four document number shapes the Federal Register publishes.
var (
	standardPattern = regexp.MustCompile(`^\d{4}-\d{5}$`)       // 2021-08964
	extendedPattern = regexp.MustCompile(`^\d{4}-\w+-\d+$`)     // 2021-ABC-123
	legacyPattern   = regexp.MustCompile(`^E\d-\d{5}$`)         // E9-30894
	datePathPattern = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}/[\w-]+$`) // 2021/04/29/2021-08964
)

// ValidDocumentNumber reports whether n matches a known document number
// format. Unknown shapes are rejected outright rather than guessed at.
func ValidDocumentNumber(n string) bool {
	if n == "" {
		return false
	}
	return standardPattern.MatchString(n) ||
		extendedPattern.MatchString(n) ||
		legacyPattern.MatchString(n) ||
		datePathPattern.MatchString(n)
}

// XMLURL returns the full-text XML URL for doc, or "" when one cannot be
// built. A URL already provided by the search API passes through as-is.
func XMLURL(doc *fedreg.Document) string {
	if strings.HasPrefix(doc.FullTextXMLURL, "http") {
		return doc.FullTextXMLURL
	}
	path, ok := documentPath(doc)
	if !ok {
		return ""
	}
	return siteBaseURL + "/documents/full_text/xml/" + path + ".xml"
}

// HTMLURL returns the rendered-page URL for doc, or "" when one cannot
// be built.
func HTMLURL(doc *fedreg.Document) string {
	if strings.HasPrefix(doc.HTMLURL, "http") {
		return doc.HTMLURL
	}
	path, ok := documentPath(doc)
	if !ok {
		return ""
	}
	return siteBaseURL + "/documents/" + path
}

// documentPath derives the yyyy/mm/dd/number path segment. Date-based
// numbers already carry it; the other formats need the publication date.
func documentPath(doc *fedreg.Document) (string, bool) {
	n := doc.DocumentNumber
	if !ValidDocumentNumber(n) {
		return "", false
	}
	if datePathPattern.MatchString(n) {
		return n, true
	}
	y, m, d, ok := splitDate(doc.PublicationDate)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s/%s/%s/%s", y, m, d, n), true
}

func splitDate(date string) (year, month, day string, ok bool) {
	parts := strings.Split(date, "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// DocumentNumberFromURL extracts the document number from a Federal
// Register document URL, or "" when the URL does not look like one.
func DocumentNumberFromURL(rawURL string) string {
	for _, marker := range []string{"/documents/full_text/xml/", "/documents/"} {
		idx := strings.Index(rawURL, marker)
		if idx < 0 {
			continue
		}
		rest := strings.TrimSuffix(rawURL[idx+len(marker):], ".xml")
		parts := strings.Split(rest, "/")
		if len(parts) != 4 {
			return ""
		}
		n := parts[3]
		if ValidDocumentNumber(n) {
			return n
		}
		return ""
	}
	return ""
}
