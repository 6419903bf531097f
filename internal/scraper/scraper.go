package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Snippet is the readable part of a feed item description.
type Snippet struct {
	Text      string
	Link      string // first anchor target, usually the publisher article
	Publisher string
}

// StripHTML returns the visible text of an HTML fragment with whitespace
// collapsed. Plain text passes through unchanged apart from spacing.
func StripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapse(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	doc.Find("script, style").Remove()
	return collapse(doc.Text())
}

// ParseDescription pulls text, link and publisher out of an aggregator
// description such as
//
//	<a href="https://site/story">Headline</a>&nbsp;&nbsp;<font color="#6f6f6f">Site</font>
func ParseDescription(fragment string) Snippet {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return Snippet{Text: collapse(fragment)}
	}
	var s Snippet
	if href, ok := doc.Find("a[href]").First().Attr("href"); ok {
		s.Link = strings.TrimSpace(href)
	}
	s.Publisher = collapse(doc.Find("font").First().Text())
	doc.Find("script, style, font").Remove()
	s.Text = collapse(doc.Text())
	return s
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ArticleContent is the extracted body of a publisher page.
type ArticleContent struct {
	Title   string
	Content string
	URL     string
}

// Extractor downloads publisher pages and pulls out their main text.
type Extractor struct {
	client *http.Client
}

func NewExtractor(timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Extractor{client: &http.Client{Timeout: timeout}}
}

// Extract fetches url and returns its title and paragraph text.
func (e *Extractor) Extract(ctx context.Context, url string) (*ArticleContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "newsdesk/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load page: HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	content := extractParagraphs(doc)
	if content == "" {
		return nil, fmt.Errorf("no readable content at %s", url)
	}
	return &ArticleContent{
		Title:   extractTitle(doc),
		Content: content,
		URL:     url,
	}, nil
}

// extractParagraphs tries article containers from most to least specific.
func extractParagraphs(doc *goquery.Document) string {
	selectors := []string{
		"article p",
		".article-body p",
		".article p",
		".content p",
		".post-content p",
		".entry-content p",
		"main p",
		"#content p",
		"p",
	}

	var paragraphs []string
	for _, selector := range selectors {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			text := collapse(s.Text())
			if len([]rune(text)) > 20 {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) > 0 {
			break
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

func extractTitle(doc *goquery.Document) string {
	for _, selector := range []string{"h1", ".headline", ".entry-title", "title"} {
		if title := collapse(doc.Find(selector).First().Text()); title != "" {
			return title
		}
	}
	return ""
}
