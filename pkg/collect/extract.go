package collect

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tierup/pkg/errors"
)

// Candidate is one image reference pulled from the library page before
// deduplication.
type Candidate struct {
	Title     string
	SourceURL string
}

// Extractor parses the rendered library page and pulls out cover images.
type Extractor struct {
	// SkipNames lists image file names that are platform furniture rather
	// than covers, matched case-insensitively against the URL's base name.
	SkipNames []string
}

// NewExtractor creates an extractor that skips the given file names.
func NewExtractor(skipNames []string) *Extractor {
	return &Extractor{SkipNames: skipNames}
}

// Extract parses the page and returns cover candidates in document order,
// plus how many images were skipped as placeholders. Titles come from the
// image's alt text and may be empty.
func (e *Extractor) Extract(htmlContent string) ([]Candidate, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, 0, errors.Wrap(errors.ErrorTypeExtraction, "failed to parse library page", err)
	}

	var candidates []Candidate
	skipped := 0

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		src := e.sourceFor(s)
		if src == "" {
			return
		}
		if e.isPlaceholder(src) {
			skipped++
			return
		}

		candidates = append(candidates, Candidate{
			Title:     strings.TrimSpace(s.AttrOr("alt", "")),
			SourceURL: src,
		})
	})

	return candidates, skipped, nil
}

// sourceFor resolves the best URL for one img element. A picture element
// wrapping the img wins with its first srcset entry, because that is
// where the site puts the full-resolution variant; src and the lazy-load
// data-src attribute are the fallbacks.
func (e *Extractor) sourceFor(s *goquery.Selection) string {
	if pic := s.Closest("picture"); pic.Length() > 0 {
		if srcset, ok := pic.Find("source[srcset]").First().Attr("srcset"); ok {
			if u := firstSrcsetURL(srcset); u != "" {
				return u
			}
		}
	}

	if src, ok := s.Attr("src"); ok && src != "" {
		return src
	}
	if src, ok := s.Attr("data-src"); ok && src != "" {
		return src
	}
	return ""
}

// firstSrcsetURL pulls the URL out of the first srcset entry, dropping
// the width/density descriptor.
func firstSrcsetURL(srcset string) string {
	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(entry)
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// isPlaceholder reports whether the URL's file name is on the skip list.
func (e *Extractor) isPlaceholder(rawURL string) bool {
	if len(e.SkipNames) == 0 {
		return false
	}

	base := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		base = u.Path
	}
	base = path.Base(base)

	for _, skip := range e.SkipNames {
		if strings.EqualFold(base, skip) {
			return true
		}
	}
	return false
}

// CanonicalKey reduces a URL to its deduplication key: the scheme, host,
// and path, lowercased. Query strings and fragments carry cache-busting
// noise and are dropped. Unparseable or schemeless URLs return an error
// so callers can fall back to the raw string.
func CanonicalKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeExtraction, "unparseable image URL", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.NewWithURL(errors.ErrorTypeExtraction, "image URL is not absolute", rawURL)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host + u.Path), nil
}
