package controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"scholar/scholar/config"
	"scholar/scholar/services/llm"
	"scholar/scholar/services/pdftext"
	"scholar/scholar/services/rag"
	"scholar/scholar/sources/db/dao"
	"scholar/scholar/sources/db/models"
	"scholar/scholar/sources/storage"
	"scholar/scholar/utils/logging"
	"scholar/scholar/utils/types"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

var (
	ErrNoPapers        = errors.New("paper_ids must not be empty")
	ErrNoText          = errors.New("no text could be extracted from the paper")
	ErrSessionNotFound = errors.New("session not found or forbidden")
	ErrEmptyQuestion   = errors.New("question must not be empty")
	ErrStreamFailed    = errors.New("answer stream failed")
)

const maxIndexBatch = 20

// PaperFetcher makes sure a paper's file is in storage.
type PaperFetcher interface {
	Download(ctx context.Context, id int) (*models.PaperMetadata, error)
}

type RAGController struct {
	paperDAO *dao.PaperDAO
	chunkDAO *dao.ChunkDAO
	chatDAO  *dao.ChatDAO
	store    storage.Store
	fetcher  PaperFetcher
	embedder llm.Embedder
	llm      llm.Client
	cfg      config.RAGConfig
	maxTok   int
}

func NewRAGController(paperDAO *dao.PaperDAO, chunkDAO *dao.ChunkDAO, chatDAO *dao.ChatDAO, store storage.Store,
	fetcher PaperFetcher, embedder llm.Embedder, client llm.Client, cfg config.RAGConfig, maxTokens int) *RAGController {
	return &RAGController{
		paperDAO: paperDAO,
		chunkDAO: chunkDAO,
		chatDAO:  chatDAO,
		store:    store,
		fetcher:  fetcher,
		embedder: embedder,
		llm:      client,
		cfg:      cfg,
		maxTok:   maxTokens,
	}
}

// Index (re)builds the chunks of every listed paper. A failing paper is
// reported in its result and does not stop the others.
func (c *RAGController) Index(ctx context.Context, ids []int) ([]types.IndexResult, error) {
	if len(ids) == 0 {
		return nil, ErrNoPapers
	}
	if len(ids) > maxIndexBatch {
		return nil, fmt.Errorf("at most %d papers per request", maxIndexBatch)
	}
	results := make([]types.IndexResult, 0, len(ids))
	for _, id := range ids {
		n, err := c.indexPaper(ctx, id)
		res := types.IndexResult{PaperID: id, Chunks: n}
		if err != nil {
			logging.ErrorLogger.Error("indexing failed", zap.Int("paper_id", id), zap.Error(err))
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *RAGController) indexPaper(ctx context.Context, id int) (int, error) {
	defer logging.LogDuration(ctx, "rag_index_paper")()
	paper, err := c.paperDAO.GetPaperByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if paper == nil {
		return 0, ErrPaperNotFound
	}

	if !paper.Stored() && paper.PDFURL != "" {
		if fetched, err := c.fetcher.Download(ctx, id); err != nil {
			logging.AppLogger.Warn("pdf download failed, indexing abstract", zap.Int("paper_id", id), zap.Error(err))
		} else {
			paper = fetched
		}
	}

	text, err := c.paperText(ctx, paper)
	if err != nil {
		return 0, err
	}
	pieces := rag.Chunk(text, c.cfg.ChunkSize, c.cfg.ChunkOverlap)
	if len(pieces) == 0 {
		return 0, ErrNoText
	}
	vectors, err := c.embedder.Embed(ctx, pieces)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(pieces) {
		return 0, fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(pieces))
	}

	chunks := make([]models.PaperChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = models.PaperChunk{Ordinal: i, Content: piece, Embedding: pgvector.NewVector(vectors[i])}
	}
	if err := c.chunkDAO.ReplaceChunks(ctx, paper.ID, chunks); err != nil {
		return 0, err
	}
	logging.AppLogger.Info("paper indexed", zap.Int("paper_id", paper.ID), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// paperText prefers the stored file and falls back to title and abstract.
func (c *RAGController) paperText(ctx context.Context, paper *models.PaperMetadata) (string, error) {
	if paper.Stored() {
		rc, err := c.store.Get(ctx, paper.StorageKey)
		if err != nil {
			return "", err
		}
		data, err := io.ReadAll(io.LimitReader(rc, MaxPaperBytes))
		rc.Close()
		if err != nil {
			return "", err
		}
		var text string
		if strings.HasSuffix(paper.StorageKey, ".pdf") {
			text, err = pdftext.ExtractText(data)
			if err != nil {
				logging.AppLogger.Warn("pdf text extraction failed", zap.Int("paper_id", paper.ID), zap.Error(err))
			}
		} else {
			text = string(data)
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return strings.TrimSpace(paper.Title + "\n\n" + paper.Abstract), nil
}

func (c *RAGController) CreateSession(ctx context.Context, userID int, req types.CreateSessionRequest) (*models.ChatSession, error) {
	ids := dedupe(req.PaperIDs)
	if len(ids) == 0 {
		return nil, ErrNoPapers
	}
	papers, err := c.paperDAO.GetPapersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(papers) != len(ids) {
		return nil, ErrPaperNotFound
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Chat about " + papers[0].Title
		if len(papers) > 1 {
			title += fmt.Sprintf(" and %d more", len(papers)-1)
		}
	}
	session := &models.ChatSession{UserID: userID, Title: title, PaperIDs: ids}
	if err := c.chatDAO.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (c *RAGController) ListSessions(ctx context.Context, userID int) ([]models.ChatSession, error) {
	return c.chatDAO.ListSessions(ctx, userID)
}

func (c *RAGController) Messages(ctx context.Context, userID int, sessionID uuid.UUID) ([]models.ChatMessage, error) {
	session, err := c.chatDAO.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return c.chatDAO.GetMessages(ctx, sessionID)
}

func (c *RAGController) DeleteSession(ctx context.Context, userID int, sessionID uuid.UUID) error {
	deleted, err := c.chatDAO.DeleteSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrSessionNotFound
	}
	return nil
}

type turn struct {
	session  *models.ChatSession
	question string
	hits     []rag.Hit
	titles   map[int]string
	history  []models.ChatMessage
}

func (c *RAGController) prepare(ctx context.Context, userID int, sessionID uuid.UUID, question string) (*turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	session, err := c.chatDAO.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	history, err := c.chatDAO.GetMessages(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	papers, err := c.paperDAO.GetPapersByIDs(ctx, session.PaperIDs)
	if err != nil {
		return nil, err
	}
	titles := make(map[int]string, len(papers))
	for _, p := range papers {
		titles[p.ID] = p.Title
	}

	chunks, err := c.chunkDAO.GetChunksForPapers(ctx, session.PaperIDs)
	if err != nil {
		return nil, err
	}
	var hits []rag.Hit
	if len(chunks) > 0 {
		vectors, err := c.embedder.Embed(ctx, []string{question})
		if err != nil {
			return nil, fmt.Errorf("embed question: %w", err)
		}
		hits = rag.TopK(vectors[0], chunks, c.cfg.TopK)
	}
	return &turn{session: session, question: question, hits: hits, titles: titles, history: history}, nil
}

func (c *RAGController) request(t *turn) llm.ChatRequest {
	return llm.ChatRequest{
		Messages:  rag.BuildMessages(t.question, t.hits, t.titles, t.history),
		MaxTokens: c.maxTok,
	}
}

// Chat answers a question from the session's papers and records the turn.
func (c *RAGController) Chat(ctx context.Context, userID int, req types.ChatRequest) (*types.ChatResponse, error) {
	defer logging.LogDuration(ctx, "rag_chat")()
	t, err := c.prepare(ctx, userID, req.SessionID, req.Question)
	if err != nil {
		return nil, err
	}
	answer := ""
	if c.llm != nil && len(t.hits) > 0 {
		answer, err = c.llm.Run(ctx, c.request(t))
		if err != nil {
			logging.ErrorLogger.Error("chat completion failed, answering extractively", zap.Error(err))
			answer = ""
		}
	}
	if answer == "" {
		answer = rag.Extractive(t.hits, t.titles)
	}
	return c.record(ctx, userID, t, answer)
}

// Stream is Chat with the answer delivered through emit as it is generated.
func (c *RAGController) Stream(ctx context.Context, userID int, req types.ChatRequest, emit func(string) error) (*types.ChatResponse, error) {
	t, err := c.prepare(ctx, userID, req.SessionID, req.Question)
	if err != nil {
		return nil, err
	}
	if c.llm == nil || len(t.hits) == 0 {
		answer := rag.Extractive(t.hits, t.titles)
		if err := emit(answer); err != nil {
			return nil, err
		}
		return c.record(ctx, userID, t, answer)
	}

	deltas, err := c.llm.RunStream(ctx, c.request(t))
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	for delta := range deltas {
		if delta.Err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStreamFailed, delta.Err)
		}
		sb.WriteString(delta.Text)
		if err := emit(delta.Text); err != nil {
			// drain so the producer can exit
			for range deltas {
			}
			return nil, err
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return c.record(ctx, userID, t, sb.String())
}

func (c *RAGController) record(ctx context.Context, userID int, t *turn, answer string) (*types.ChatResponse, error) {
	sources := rag.Sources(t.hits, t.titles)
	if err := c.chatDAO.SaveMessage(ctx, &models.ChatMessage{
		SessionID: t.session.ID, UserID: userID, Role: models.RoleUser, Content: t.question,
	}); err != nil {
		return nil, err
	}
	if err := c.chatDAO.SaveMessage(ctx, &models.ChatMessage{
		SessionID: t.session.ID, UserID: userID, Role: models.RoleAssistant, Content: answer, Sources: sources,
	}); err != nil {
		return nil, err
	}
	return &types.ChatResponse{Answer: answer, SessionID: t.session.ID, Sources: sources}, nil
}

func dedupe(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id > 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
