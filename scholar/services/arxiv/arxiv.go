// Package arxiv queries the arXiv export API for paper metadata.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	httputils "scholar/scholar/utils/http"
)

const maxFeedBytes = 8 << 20

type Entry struct {
	ID        string
	Title     string
	Summary   string
	Authors   []string
	Published time.Time
	PDFURL    string
	AbsURL    string
}

type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Entry, error)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, client *http.Client) *Client {
	return &Client{baseURL: baseURL, http: client}
}

type feed struct {
	Entries []struct {
		ID        string `xml:"id"`
		Title     string `xml:"title"`
		Summary   string `xml:"summary"`
		Published string `xml:"published"`
		Authors   []struct {
			Name string `xml:"name"`
		} `xml:"author"`
		Links []struct {
			Href  string `xml:"href,attr"`
			Rel   string `xml:"rel,attr"`
			Type  string `xml:"type,attr"`
			Title string `xml:"title,attr"`
		} `xml:"link"`
	} `xml:"entry"`
}

func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Entry, error) {
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprint(maxResults))
	params.Set("sortBy", "relevance")

	data, err := httputils.GetBytes(ctx, c.http, c.baseURL+"?"+params.Encode(), maxFeedBytes)
	if err != nil {
		return nil, fmt.Errorf("arxiv search: %w", err)
	}
	return ParseFeed(data)
}

// ParseFeed decodes an arXiv Atom feed.
func ParseFeed(data []byte) ([]Entry, error) {
	var f feed
	if err := xml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse arxiv feed: %w", err)
	}
	entries := make([]Entry, 0, len(f.Entries))
	for _, e := range f.Entries {
		entry := Entry{
			ID:      IDFromURL(e.ID),
			Title:   squash(e.Title),
			Summary: squash(e.Summary),
			AbsURL:  strings.TrimSpace(e.ID),
		}
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
			entry.Published = t
		}
		for _, a := range e.Authors {
			entry.Authors = append(entry.Authors, squash(a.Name))
		}
		for _, l := range e.Links {
			if l.Title == "pdf" || l.Type == "application/pdf" {
				entry.PDFURL = l.Href
			}
		}
		if entry.ID == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var versionSuffix = regexp.MustCompile(`v\d+$`)

// IDFromURL turns http://arxiv.org/abs/1706.03762v7 into 1706.03762.
func IDFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	i := strings.Index(raw, "/abs/")
	if i < 0 {
		return ""
	}
	return versionSuffix.ReplaceAllString(raw[i+len("/abs/"):], "")
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
