package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scholar/scholar/config"
	"scholar/scholar/middlewares"
	"scholar/scholar/services/arxiv"
	"scholar/scholar/services/llm"
	"scholar/scholar/services/scraper"
	"scholar/scholar/sources/cache"
	"scholar/scholar/sources/db"
	"scholar/scholar/sources/db/dao"
	"scholar/scholar/sources/db/models"
	"scholar/scholar/sources/storage"
	httputils "scholar/scholar/utils/http"
	"scholar/scholar/utils/logging"
	"scholar/scholar/utils/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type fakeSearcher struct {
	calls   int
	entries []arxiv.Entry
}

func (f *fakeSearcher) Search(ctx context.Context, query string, maxResults int) ([]arxiv.Entry, error) {
	f.calls++
	return f.entries, nil
}

type fakeImporter struct {
	meta *scraper.PageMeta
}

func (f fakeImporter) ImportPage(ctx context.Context, pageURL string) (*scraper.PageMeta, error) {
	return f.meta, nil
}

type fakeLLM struct {
	reply     string
	err       error
	streamErr error
	last      llm.ChatRequest
}

func (f *fakeLLM) Run(ctx context.Context, req llm.ChatRequest) (string, error) {
	f.last = req
	return f.reply, f.err
}

func (f *fakeLLM) RunStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.Delta, error) {
	f.last = req
	ch := make(chan llm.Delta, 3)
	ch <- llm.Delta{Text: "streamed "}
	if f.streamErr != nil {
		ch <- llm.Delta{Err: f.streamErr}
	} else {
		ch <- llm.Delta{Text: "answer"}
	}
	close(ch)
	return ch, nil
}

type env struct {
	db     *gorm.DB
	store  storage.Store
	papers *PapersController
	rag    *RAGController
	auth   *AuthController
	search *fakeSearcher
}

func newEnv(t *testing.T, client llm.Client, importer PageImporter) *env {
	t.Helper()
	database, err := db.NewDatabase("sqlite:///"+filepath.Join(t.TempDir(), "test.db"), false)
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.CreateAll(context.Background()))

	cfg, _ := config.ByName(config.ProfileTest)
	store := storage.NewLocalStore(t.TempDir())
	search := &fakeSearcher{}
	paperDAO := dao.NewPaperDAO(database.DB)
	papers := NewPapersController(paperDAO, store, search, importer, cache.NewMemoryCache(), time.Minute, client, http.DefaultClient)
	embedder := llm.NewHashEmbedder(llm.DefaultHashDims)
	ragCtrl := NewRAGController(paperDAO, dao.NewChunkDAO(database.DB), dao.NewChatDAO(database.DB), store,
		papers, embedder, client, config.RAGConfig{ChunkSize: 200, ChunkOverlap: 20, TopK: 3}, 200)
	tokens := middlewares.NewTokenManager(cfg, dao.NewTokenDAO(database.DB))
	auth := NewAuthController(dao.NewUserDAO(database.DB), tokens)
	return &env{db: database.DB, store: store, papers: papers, rag: ragCtrl, auth: auth, search: search}
}

const minimalPDF = "%PDF-1.4\n%fake\n"

func TestAuthFlow(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	_, err := e.auth.Register(ctx, types.RegisterRequest{Username: "ada"})
	assert.ErrorIs(t, err, ErrMissingFields)

	user, err := e.auth.Register(ctx, types.RegisterRequest{Username: "ada", Email: "Ada@Example.com", Password: "lovelace1"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	_, err = e.auth.Register(ctx, types.RegisterRequest{Username: "ada", Email: "x@example.com", Password: "lovelace1"})
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = e.auth.Register(ctx, types.RegisterRequest{Username: "ada2", Email: "ADA@example.com", Password: "lovelace1"})
	assert.ErrorIs(t, err, ErrUserExists, "email uniqueness is enforced by the index")

	_, err = e.auth.Login(ctx, types.LoginRequest{UsernameOrEmail: "nobody", Password: "x"})
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = e.auth.Login(ctx, types.LoginRequest{UsernameOrEmail: "ada", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrWrongPassword)

	res, err := e.auth.Login(ctx, types.LoginRequest{UsernameOrEmail: "ada@example.com", Password: "lovelace1"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.UserID)

	access, err := e.auth.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	_, err = e.auth.Refresh(ctx, res.AccessToken)
	assert.ErrorIs(t, err, middlewares.ErrInvalidToken)

	me, err := e.auth.Me(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", me.Username)
}

func TestPasswordReset(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()
	user, err := e.auth.Register(ctx, types.RegisterRequest{Username: "grace", Email: "grace@example.com", Password: "hopper123"})
	require.NoError(t, err)

	require.NoError(t, e.auth.ForgetPassword(ctx, "unknown@example.com"))
	require.NoError(t, e.auth.ForgetPassword(ctx, "grace@example.com"))

	reset, err := e.auth.tokens.Issue(user.ID, middlewares.TokenReset)
	require.NoError(t, err)

	err = e.auth.ResetPassword(ctx, types.ResetPasswordRequest{Password: "newpass123", ConfirmPassword: "other", Token: reset})
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	req := types.ResetPasswordRequest{Password: "newpass123", ConfirmPassword: "newpass123", Token: reset}
	require.NoError(t, e.auth.ResetPassword(ctx, req))
	assert.ErrorIs(t, e.auth.ResetPassword(ctx, req), middlewares.ErrRevokedToken, "reset tokens are single use")

	_, err = e.auth.Login(ctx, types.LoginRequest{UsernameOrEmail: "grace", Password: "newpass123"})
	assert.NoError(t, err)
}

func TestResetTokenOnlyInDebugLog(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()
	_, err := e.auth.Register(ctx, types.RegisterRequest{Username: "lin", Email: "lin@example.com", Password: "password1"})
	require.NoError(t, err)

	prev := logging.AppLogger
	t.Cleanup(func() { logging.AppLogger = prev })

	for _, level := range []zapcore.Level{zapcore.InfoLevel, zapcore.DebugLevel} {
		core, logs := observer.New(level)
		logging.AppLogger = zap.New(core)
		require.NoError(t, e.auth.ForgetPassword(ctx, "lin@example.com"))

		var tokens []string
		for _, entry := range logs.All() {
			if tok, ok := entry.ContextMap()["reset_token"]; ok {
				tokens = append(tokens, tok.(string))
			}
		}
		if level == zapcore.DebugLevel {
			require.Len(t, tokens, 1)
			assert.NotEmpty(t, tokens[0])
		} else {
			assert.Empty(t, tokens)
			assert.Equal(t, 1, logs.FilterMessage("password reset token issued").Len())
		}
	}
}

func TestSearchCachesAndSummarizes(t *testing.T) {
	fake := &fakeLLM{reply: "```json\n{\"sentences\": [\"Transformers dominate.\", \"Attention is key.\",]}\n```"}
	e := newEnv(t, fake, nil)
	e.search.entries = []arxiv.Entry{
		{ID: "1706.03762", Title: "Attention Is All You Need", Summary: "We propose the Transformer. It is good.", PDFURL: "http://x/pdf"},
	}
	ctx := context.Background()

	_, err := e.papers.Search(ctx, types.SearchRequest{Query: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	res, err := e.papers.Search(ctx, types.SearchRequest{Query: "transformers"})
	require.NoError(t, err)
	require.Len(t, res.Papers, 1)
	assert.NotZero(t, res.Papers[0].ID)
	assert.Equal(t, "arxiv:1706.03762", res.Papers[0].ExternalID)
	assert.Equal(t, "Transformers dominate. Attention is key.", res.Summary)

	_, err = e.papers.Search(ctx, types.SearchRequest{Query: "Transformers"})
	require.NoError(t, err)
	assert.Equal(t, 1, e.search.calls, "second search is served from cache")
}

func TestSearchSummaryFallback(t *testing.T) {
	e := newEnv(t, &fakeLLM{err: errors.New("quota")}, nil)
	e.search.entries = []arxiv.Entry{{ID: "1", Title: "T", Summary: "First sentence. Second one."}}
	res, err := e.papers.Search(context.Background(), types.SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "T: First sentence.", res.Summary)
}

func TestUploadAndOpen(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	_, err := e.papers.Upload(ctx, "notes.pdf", strings.NewReader("not a pdf"))
	assert.ErrorIs(t, err, ErrNotPDF)

	p, err := e.papers.Upload(ctx, "resnet.pdf", strings.NewReader(minimalPDF))
	require.NoError(t, err)
	assert.Equal(t, "resnet", p.Title)
	assert.True(t, p.Stored())

	again, err := e.papers.Upload(ctx, "copy.pdf", strings.NewReader(minimalPDF))
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, p.StorageKey, again.StorageKey)

	rc, contentType, _, err := e.papers.Open(ctx, p.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, minimalPDF, string(data))
	assert.Equal(t, "application/pdf", contentType)

	_, err = e.papers.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrPaperNotFound)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/good.pdf" {
			io.WriteString(w, minimalPDF)
			return
		}
		io.WriteString(w, "<html></html>")
	}))
	defer srv.Close()

	e := newEnv(t, nil, nil)
	ctx := context.Background()
	paperDAO := dao.NewPaperDAO(e.db)
	good := &models.PaperMetadata{Source: models.SourceArxiv, ExternalID: "arxiv:good", Title: "Good", PDFURL: srv.URL + "/good.pdf"}
	bad := &models.PaperMetadata{Source: models.SourceArxiv, ExternalID: "arxiv:bad", Title: "Bad", PDFURL: srv.URL + "/bad"}
	none := &models.PaperMetadata{Source: models.SourceWeb, ExternalID: "web:none", Title: "None"}
	for _, p := range []*models.PaperMetadata{good, bad, none} {
		require.NoError(t, paperDAO.UpsertPaper(ctx, p))
	}

	got, err := e.papers.Download(ctx, good.ID)
	require.NoError(t, err)
	assert.True(t, got.Stored())

	_, err = e.papers.Download(ctx, bad.ID)
	assert.ErrorIs(t, err, ErrNotPDF)
	_, err = e.papers.Download(ctx, none.ID)
	assert.ErrorIs(t, err, ErrNoPDF)
}

func TestImportStoresPageText(t *testing.T) {
	importer := fakeImporter{meta: &scraper.PageMeta{
		URL:   "https://blog.example/post",
		Title: "A Post",
		DOI:   "10.1000/XYZ",
		Text:  "Body text of the article.",
	}}
	e := newEnv(t, nil, importer)
	ctx := context.Background()

	_, err := e.papers.Import(ctx, "ftp://x")
	assert.ErrorIs(t, err, ErrInvalidImportURL)

	p, err := e.papers.Import(ctx, "https://blog.example/post")
	require.NoError(t, err)
	assert.Equal(t, "doi:10.1000/xyz", p.ExternalID)
	assert.Equal(t, models.SourceWeb, p.Source)
	require.True(t, p.Stored())
	assert.True(t, strings.HasSuffix(p.StorageKey, ".txt"))

	rc, contentType, _, err := e.papers.Open(ctx, p.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "text/plain; charset=utf-8", contentType)
}

func TestImportAndDownloadRefuseInternalHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/paper.pdf" {
			io.WriteString(w, minimalPDF)
			return
		}
		io.WriteString(w, `<html><head><meta name="citation_title" content="Internal"></head><body>secret</body></html>`)
	}))
	defer srv.Close()

	e := newEnv(t, nil, nil)
	ctx := context.Background()
	paperDAO := dao.NewPaperDAO(e.db)
	papers := NewPapersController(paperDAO, e.store, e.search, scraper.NewScraper(httputils.PublicClient),
		cache.NewMemoryCache(), time.Minute, nil, httputils.PublicClient)

	_, err := papers.Import(ctx, srv.URL+"/landing")
	assert.ErrorIs(t, err, ErrBlockedURL)
	list, err := papers.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	p := &models.PaperMetadata{Source: models.SourceArxiv, ExternalID: "arxiv:internal", Title: "I", PDFURL: srv.URL + "/paper.pdf"}
	require.NoError(t, paperDAO.UpsertPaper(ctx, p))
	_, err = papers.Download(ctx, p.ID)
	assert.ErrorIs(t, err, ErrBlockedURL)
}

func seedIndexedSession(t *testing.T, e *env) (int, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	user, err := e.auth.Register(ctx, types.RegisterRequest{Username: "u", Email: "u@example.com", Password: "password1"})
	require.NoError(t, err)

	p := &models.PaperMetadata{
		Source:     models.SourceArxiv,
		ExternalID: "arxiv:1512.03385",
		Title:      "Deep Residual Learning",
		Abstract:   "Deeper neural networks are more difficult to train. We present a residual learning framework to ease the training of networks that are substantially deeper than those used previously.",
	}
	require.NoError(t, dao.NewPaperDAO(e.db).UpsertPaper(ctx, p))

	results, err := e.rag.Index(ctx, []int{p.ID, 404})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Empty(t, results[0].Error)
	assert.Positive(t, results[0].Chunks)
	assert.Equal(t, ErrPaperNotFound.Error(), results[1].Error)

	session, err := e.rag.CreateSession(ctx, user.ID, types.CreateSessionRequest{PaperIDs: []int{p.ID, p.ID}})
	require.NoError(t, err)
	assert.Equal(t, "Chat about Deep Residual Learning", session.Title)
	assert.Equal(t, []int{p.ID}, session.PaperIDs)
	return user.ID, session.ID
}

func TestChatExtractiveWithoutLLM(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()
	userID, sessionID := seedIndexedSession(t, e)

	_, err := e.rag.Chat(ctx, userID, types.ChatRequest{SessionID: sessionID, Question: " "})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	_, err = e.rag.Chat(ctx, userID+1, types.ChatRequest{SessionID: sessionID, Question: "why?"})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	res, err := e.rag.Chat(ctx, userID, types.ChatRequest{SessionID: sessionID, Question: "How does residual learning ease training?"})
	require.NoError(t, err)
	assert.Contains(t, res.Answer, "Deep Residual Learning")
	require.NotEmpty(t, res.Sources)

	msgs, err := e.rag.Messages(ctx, userID, sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
}

func TestChatWithLLMAndStream(t *testing.T) {
	fake := &fakeLLM{reply: "Residual connections [1]."}
	e := newEnv(t, fake, nil)
	ctx := context.Background()
	userID, sessionID := seedIndexedSession(t, e)

	res, err := e.rag.Chat(ctx, userID, types.ChatRequest{SessionID: sessionID, Question: "What is proposed?"})
	require.NoError(t, err)
	assert.Equal(t, "Residual connections [1].", res.Answer)
	assert.Equal(t, "system", fake.last.Messages[0].Role)
	assert.Contains(t, fake.last.Messages[0].Content, "Deep Residual Learning")

	var got []string
	streamed, err := e.rag.Stream(ctx, userID, types.ChatRequest{SessionID: sessionID, Question: "Again?"}, func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"streamed ", "answer"}, got)
	assert.Equal(t, "streamed answer", streamed.Answer)

	msgs, err := e.rag.Messages(ctx, userID, sessionID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)

	require.NoError(t, e.rag.DeleteSession(ctx, userID, sessionID))
	assert.ErrorIs(t, e.rag.DeleteSession(ctx, userID, sessionID), ErrSessionNotFound)
}

func TestStreamFailureIsNotRecorded(t *testing.T) {
	e := newEnv(t, &fakeLLM{streamErr: errors.New("connection reset")}, nil)
	ctx := context.Background()
	userID, sessionID := seedIndexedSession(t, e)

	var got []string
	res, err := e.rag.Stream(ctx, userID, types.ChatRequest{SessionID: sessionID, Question: "What is proposed?"}, func(s string) error {
		got = append(got, s)
		return nil
	})
	assert.ErrorIs(t, err, ErrStreamFailed)
	assert.Nil(t, res)
	assert.Equal(t, []string{"streamed "}, got)

	msgs, err := e.rag.Messages(ctx, userID, sessionID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCreateSessionValidation(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()
	_, err := e.rag.CreateSession(ctx, 1, types.CreateSessionRequest{})
	assert.ErrorIs(t, err, ErrNoPapers)
	_, err = e.rag.CreateSession(ctx, 1, types.CreateSessionRequest{PaperIDs: []int{12}})
	assert.ErrorIs(t, err, ErrPaperNotFound)
}
