package controllers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"scholar/scholar/services/arxiv"
	"scholar/scholar/services/llm"
	"scholar/scholar/services/pdftext"
	"scholar/scholar/services/scraper"
	"scholar/scholar/sources/cache"
	"scholar/scholar/sources/db/dao"
	"scholar/scholar/sources/db/models"
	"scholar/scholar/sources/storage"
	httputils "scholar/scholar/utils/http"
	"scholar/scholar/utils/jsonutils"
	"scholar/scholar/utils/logging"
	"scholar/scholar/utils/types"

	"go.uber.org/zap"
)

var (
	ErrEmptyQuery       = errors.New("query must not be empty")
	ErrPaperNotFound    = errors.New("paper not found")
	ErrNoPDF            = errors.New("paper has no PDF link")
	ErrNotPDF           = errors.New("file is not a PDF")
	ErrFileNotStored    = errors.New("paper file has not been downloaded")
	ErrFileTooLarge     = errors.New("file too large")
	ErrInvalidImportURL = errors.New("url must be an absolute http(s) url")
	ErrBlockedURL       = errors.New("url points to a non-public address")
)

const (
	defaultMaxResults = 10
	maxMaxResults     = 50
	// MaxPaperBytes caps uploaded and downloaded files.
	MaxPaperBytes = 50 << 20
)

// PageImporter reads citation metadata from a landing page.
type PageImporter interface {
	ImportPage(ctx context.Context, pageURL string) (*scraper.PageMeta, error)
}

type PapersController struct {
	paperDAO *dao.PaperDAO
	store    storage.Store
	arxiv    arxiv.Searcher
	importer PageImporter
	cache    cache.Cache
	cacheTTL time.Duration
	llm      llm.Client
	http     *http.Client
}

func NewPapersController(paperDAO *dao.PaperDAO, store storage.Store, searcher arxiv.Searcher, importer PageImporter,
	c cache.Cache, cacheTTL time.Duration, client llm.Client, httpClient *http.Client) *PapersController {
	return &PapersController{
		paperDAO: paperDAO,
		store:    store,
		arxiv:    searcher,
		importer: importer,
		cache:    c,
		cacheTTL: cacheTTL,
		llm:      client,
		http:     httpClient,
	}
}

// Search queries arXiv, records every hit as paper metadata and summarizes
// the result set.
func (c *PapersController) Search(ctx context.Context, req types.SearchRequest) (*types.SearchResponse, error) {
	defer logging.LogDuration(ctx, "papers_search")()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit := req.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}
	if limit > maxMaxResults {
		limit = maxMaxResults
	}

	entries, err := c.searchCached(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	papers := make([]models.PaperMetadata, 0, len(entries))
	for _, e := range entries {
		p := paperFromEntry(e)
		if err := c.paperDAO.UpsertPaper(ctx, &p); err != nil {
			return nil, fmt.Errorf("save paper %s: %w", e.ID, err)
		}
		papers = append(papers, p)
	}
	return &types.SearchResponse{Papers: papers, Summary: c.summarize(ctx, query, papers)}, nil
}

func (c *PapersController) searchCached(ctx context.Context, query string, limit int) ([]arxiv.Entry, error) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", strings.ToLower(query), limit)))
	key := "arxiv:" + hex.EncodeToString(sum[:])

	if data, err := c.cache.Get(ctx, key); err == nil {
		var entries []arxiv.Entry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		logging.AppLogger.Warn("search cache read failed", zap.Error(err))
	}

	entries, err := c.arxiv.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(entries); err == nil {
		if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
			logging.AppLogger.Warn("search cache write failed", zap.Error(err))
		}
	}
	return entries, nil
}

func paperFromEntry(e arxiv.Entry) models.PaperMetadata {
	p := models.PaperMetadata{
		Source:     models.SourceArxiv,
		ExternalID: "arxiv:" + e.ID,
		Title:      e.Title,
		Authors:    e.Authors,
		Abstract:   e.Summary,
		PDFURL:     e.PDFURL,
	}
	if !e.Published.IsZero() {
		published := e.Published
		p.Published = &published
	}
	return p
}

type summaryJSON struct {
	Sentences []string `json:"sentences"`
}

// summarize asks the model for a short overview of the hits and falls back
// to the opening sentence of the top abstracts.
func (c *PapersController) summarize(ctx context.Context, query string, papers []models.PaperMetadata) string {
	if len(papers) == 0 {
		return "No papers matched the query."
	}
	if c.llm != nil {
		var sb strings.Builder
		for i, p := range papers {
			fmt.Fprintf(&sb, "%d. %s\n%s\n\n", i+1, p.Title, p.Abstract)
		}
		out, err := c.llm.Run(ctx, llm.ChatRequest{Messages: []llm.Message{
			{Role: "system", Content: `Summarize the research landscape of the papers below for the query in at most four sentences. Reply with JSON only: {"sentences": ["..."]}`},
			{Role: "user", Content: "Query: " + query + "\n\n" + sb.String()},
		}})
		if err == nil {
			var parsed summaryJSON
			if json.Unmarshal([]byte(jsonutils.ExtractJSON(out)), &parsed) == nil && len(parsed.Sentences) > 0 {
				return strings.Join(parsed.Sentences, " ")
			}
			logging.AppLogger.Warn("summary was not valid JSON, using extractive summary")
		} else {
			logging.ErrorLogger.Error("summary generation failed", zap.Error(err))
		}
	}
	return extractiveSummary(papers)
}

func extractiveSummary(papers []models.PaperMetadata) string {
	var parts []string
	for _, p := range papers {
		if len(parts) == 3 {
			break
		}
		if s := firstSentence(p.Abstract); s != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", p.Title, s))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Found %d papers.", len(papers))
	}
	return strings.Join(parts, " ")
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}

func (c *PapersController) List(ctx context.Context, limit, offset int) ([]models.PaperMetadata, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return c.paperDAO.ListPapers(ctx, limit, offset)
}

func (c *PapersController) Get(ctx context.Context, id int) (*models.PaperMetadata, error) {
	paper, err := c.paperDAO.GetPaperByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if paper == nil {
		return nil, ErrPaperNotFound
	}
	return paper, nil
}

// Import records the paper described by a landing page. Pages without a PDF
// link keep their readable text as the paper file.
func (c *PapersController) Import(ctx context.Context, pageURL string) (*models.PaperMetadata, error) {
	pageURL = strings.TrimSpace(pageURL)
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		return nil, ErrInvalidImportURL
	}
	meta, err := c.importer.ImportPage(ctx, pageURL)
	if errors.Is(err, httputils.ErrBlockedAddress) {
		return nil, ErrBlockedURL
	}
	if err != nil {
		return nil, err
	}

	p := models.PaperMetadata{
		Source:     models.SourceWeb,
		ExternalID: "web:" + meta.URL,
		Title:      meta.Title,
		Authors:    meta.Authors,
		Abstract:   meta.Abstract,
		PDFURL:     meta.PDFURL,
		Published:  meta.Published,
	}
	switch {
	case meta.ArxivID != "":
		p.Source = models.SourceArxiv
		p.ExternalID = "arxiv:" + meta.ArxivID
	case meta.DOI != "":
		p.ExternalID = "doi:" + strings.ToLower(meta.DOI)
	}
	if p.Title == "" {
		p.Title = meta.URL
	}
	if err := c.paperDAO.UpsertPaper(ctx, &p); err != nil {
		return nil, err
	}

	if p.PDFURL == "" && !p.Stored() && meta.Text != "" {
		key := storage.NewPaperKey("txt")
		if err := c.store.Put(ctx, key, strings.NewReader(meta.Text), int64(len(meta.Text)), "text/plain; charset=utf-8"); err != nil {
			return nil, err
		}
		if err := c.paperDAO.SetStorageKey(ctx, p.ID, key); err != nil {
			c.discard(ctx, key)
			return nil, err
		}
		p.StorageKey = key
	}
	logging.AppLogger.Info("paper imported", zap.Int("paper_id", p.ID), zap.String("external_id", p.ExternalID))
	return &p, nil
}

// Upload stores a user-supplied PDF. The same bytes uploaded twice map to
// one paper.
func (c *PapersController) Upload(ctx context.Context, filename string, r io.Reader) (*models.PaperMetadata, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxPaperBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxPaperBytes {
		return nil, ErrFileTooLarge
	}
	if !pdftext.IsPDF(filename, data) {
		return nil, ErrNotPDF
	}

	sum := sha256.Sum256(data)
	title := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	if title == "" || title == "." {
		title = "Untitled upload"
	}
	p := models.PaperMetadata{
		Source:     models.SourceUpload,
		ExternalID: "upload:" + hex.EncodeToString(sum[:]),
		Title:      title,
	}
	if err := c.paperDAO.UpsertPaper(ctx, &p); err != nil {
		return nil, err
	}
	if p.Stored() {
		return &p, nil
	}
	if err := c.storePDF(ctx, &p, data); err != nil {
		return nil, err
	}
	return &p, nil
}

// Download fetches the paper's PDF into storage unless it is already there.
func (c *PapersController) Download(ctx context.Context, id int) (*models.PaperMetadata, error) {
	defer logging.LogDuration(ctx, "papers_download")()
	p, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Stored() {
		return p, nil
	}
	if p.PDFURL == "" {
		return nil, ErrNoPDF
	}
	data, err := httputils.GetBytes(ctx, c.http, p.PDFURL, MaxPaperBytes)
	if errors.Is(err, httputils.ErrBlockedAddress) {
		return nil, ErrBlockedURL
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", p.PDFURL, err)
	}
	if !pdftext.IsPDF("", data) {
		return nil, ErrNotPDF
	}
	if err := c.storePDF(ctx, p, data); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *PapersController) storePDF(ctx context.Context, p *models.PaperMetadata, data []byte) error {
	key := storage.NewPaperKey("pdf")
	if err := c.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		return err
	}
	if err := c.paperDAO.SetStorageKey(ctx, p.ID, key); err != nil {
		c.discard(ctx, key)
		return err
	}
	p.StorageKey = key
	return nil
}

// discard removes an object whose key never made it into the database.
func (c *PapersController) discard(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		logging.ErrorLogger.Error("failed to remove orphaned paper file", zap.String("key", key), zap.Error(err))
	}
}

// Open returns the stored file and its content type. The caller closes it.
func (c *PapersController) Open(ctx context.Context, id int) (io.ReadCloser, string, *models.PaperMetadata, error) {
	p, err := c.Get(ctx, id)
	if err != nil {
		return nil, "", nil, err
	}
	if !p.Stored() {
		return nil, "", nil, ErrFileNotStored
	}
	rc, err := c.store.Get(ctx, p.StorageKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, "", nil, ErrFileNotStored
	}
	if err != nil {
		return nil, "", nil, err
	}
	return rc, ContentType(p.StorageKey), p, nil
}

func ContentType(key string) string {
	if strings.HasSuffix(key, ".txt") {
		return "text/plain; charset=utf-8"
	}
	return "application/pdf"
}
