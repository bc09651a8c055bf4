package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	httputils "scholar/scholar/utils/http"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const maxPageBytes = 5 << 20

// PageMeta is what a landing page says about the paper it describes.
type PageMeta struct {
	URL       string
	Title     string
	Authors   []string
	Abstract  string
	PDFURL    string
	Published *time.Time
	ArxivID   string
	DOI       string
	Text      string
}

// Scraper fetches landing pages of papers.
type Scraper struct {
	http *http.Client
}

func NewScraper(client *http.Client) *Scraper {
	return &Scraper{http: client}
}

func (s *Scraper) ImportPage(ctx context.Context, pageURL string) (*PageMeta, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid page url %q", pageURL)
	}
	data, err := httputils.GetBytes(ctx, s.http, pageURL, maxPageBytes)
	if err != nil {
		return nil, err
	}
	meta, err := ParseMeta(u, data)
	if err != nil {
		return nil, err
	}
	if meta.Title == "" {
		return nil, fmt.Errorf("no paper title found at %s", pageURL)
	}
	return meta, nil
}

// ParseMeta reads the Highwire citation_* tags scholarly sites publish,
// falling back to OpenGraph and the document title.
func ParseMeta(base *url.URL, page []byte) (*PageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	meta := &PageMeta{URL: base.String()}
	first := func(names ...string) string {
		for _, n := range names {
			sel := doc.Find(fmt.Sprintf(`meta[name=%q], meta[property=%q]`, n, n)).First()
			if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
				return squash(v)
			}
		}
		return ""
	}

	meta.Title = first("citation_title", "og:title", "dc.title")
	if meta.Title == "" {
		meta.Title = squash(doc.Find("title").First().Text())
	}
	doc.Find(`meta[name="citation_author"]`).Each(func(_ int, sel *goquery.Selection) {
		if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
			meta.Authors = append(meta.Authors, squash(v))
		}
	})
	meta.Abstract = first("citation_abstract", "description", "og:description", "dc.description")
	meta.ArxivID = first("citation_arxiv_id")
	meta.DOI = first("citation_doi", "dc.identifier")

	if pdf := first("citation_pdf_url"); pdf != "" {
		if ref, err := base.Parse(pdf); err == nil {
			meta.PDFURL = ref.String()
		}
	}
	for _, layout := range []string{"2006/01/02", "2006-01-02", "2006/01", "2006"} {
		if t, err := time.Parse(layout, first("citation_publication_date", "citation_date", "citation_online_date")); err == nil {
			meta.Published = &t
			break
		}
	}
	meta.Text = ExtractCleanText(string(page))
	return meta, nil
}

// ExtractCleanText parses HTML and returns its visible text.
func ExtractCleanText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "header", "footer", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)
	return squash(sb.String())
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
