package web

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/coursedeck/internal/domain"
	"github.com/conorfennell/coursedeck/internal/knol"
	"github.com/conorfennell/coursedeck/internal/library"
	"github.com/conorfennell/coursedeck/internal/progress"
	"github.com/conorfennell/coursedeck/internal/selector"
	"github.com/conorfennell/coursedeck/internal/storage"
	"github.com/conorfennell/coursedeck/internal/study"
	decksync "github.com/conorfennell/coursedeck/internal/sync"
)

type testEnv struct {
	server *Server
	db     *storage.DB
	lib    *library.Library
	cards  []domain.Card
	deck   string
}

func newTestEnv(t *testing.T, defaultUser string) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := storage.Open(ctx, storage.DriverSQLite, filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sourceID, err := db.InsertSource(ctx, dir, storage.SourceLocal)
	require.NoError(t, err)
	cards := knol.Stamp([]domain.Card{
		{Question: "Capital of France?", Answer: "Paris"},
		{Question: "2 + 2?", Answer: "4", Context: "arithmetic"},
	})
	_, err = db.ReplaceDeck(ctx, sourceID, "geo", cards)
	require.NoError(t, err)
	decks, err := db.ListDecks(ctx)
	require.NoError(t, err)
	require.Len(t, decks, 1)

	lib, err := library.New(filepath.Join(dir, "originals"), filepath.Join(dir, "uploads"), 1024)
	require.NoError(t, err)

	svc := study.NewService(db, progress.NewTracker(db, nil), selector.NewSeeded(7), nil)
	srv, err := NewServer(Deps{
		Store:       db,
		Study:       svc,
		Syncer:      decksync.New(db, filepath.Join(dir, "repos"), nil),
		Library:     lib,
		DefaultUser: defaultUser,
	})
	require.NoError(t, err)

	return &testEnv{server: srv, db: db, lib: lib, cards: cards, deck: decks[0].Key()}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "alice")
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestIndexListsDocumentsAndDecks(t *testing.T) {
	env := newTestEnv(t, "alice")
	require.NoError(t, os.WriteFile(filepath.Join(env.lib.OriginalsDir(), "lecture-1.pdf"), []byte("%PDF"), 0o644))

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "lecture-1.pdf")
	assert.Contains(t, body, "geo")
	assert.Contains(t, body, "2 cards")
}

func TestAnonymousUserGetsCookie(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, userCookie, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)

	// A valid cookie is reused.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = env.do(t, req)
	assert.Empty(t, rec.Result().Cookies())

	// A tampered cookie is replaced.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: userCookie, Value: "not-a-uuid"})
	rec = env.do(t, req)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.NotEqual(t, "not-a-uuid", rec.Result().Cookies()[0].Value)
}

func TestReviewFlow(t *testing.T) {
	env := newTestEnv(t, "alice")
	ctx := context.Background()

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/review/next?deck="+env.deck, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Show answer")

	card := env.cards[0]
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/review/answer/"+card.Hash+"?deck="+env.deck, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Paris")

	rec = env.do(t, postForm("/review/"+card.Hash, url.Values{"deck": {env.deck}, "outcome": {"known"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Show answer")

	score, ok, err := env.db.Get(ctx, "alice", card.Hash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, score)

	rec = env.do(t, postForm("/review/"+card.Hash, url.Values{"deck": {env.deck}, "outcome": {"unknown"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	score, _, err = env.db.Get(ctx, "alice", card.Hash)
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestReviewRejectsInvalidVote(t *testing.T) {
	env := newTestEnv(t, "alice")
	hash := env.cards[0].Hash

	rec := env.do(t, postForm("/review/"+hash, url.Values{"deck": {env.deck}, "outcome": {"maybe"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, postForm("/review/"+hash, url.Values{"outcome": {"known"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, ok, err := env.db.Get(context.Background(), "alice", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReviewEmptyDeck(t *testing.T) {
	env := newTestEnv(t, "alice")
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/review/next?deck=missing", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "has no cards")
}

func TestShowAnswerUnknownCard(t *testing.T) {
	env := newTestEnv(t, "alice")
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/review/answer/nope?deck="+env.deck, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeckProgress(t *testing.T) {
	env := newTestEnv(t, "alice")
	require.NoError(t, env.db.Put(context.Background(), "alice", env.cards[1].Hash, 5))

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/decks/progress?deck="+env.deck, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Capital of France?")
	assert.Contains(t, body, "10.00")
	assert.Contains(t, body, "1.67")
	assert.Contains(t, body, `class="mastered"`)
}

func TestStorageFailureHaltsPractice(t *testing.T) {
	env := newTestEnv(t, "alice")
	require.NoError(t, env.db.Close())

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/review/next?deck="+env.deck, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, postForm("/review/"+env.cards[0].Hash, url.Values{"deck": {env.deck}, "outcome": {"known"}}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("document", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/pdfs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t, "alice")

	rec := env.do(t, uploadRequest(t, "notes.pdf", []byte("%PDF-1.4")))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.FileExists(t, filepath.Join(env.lib.UploadsDir(), "notes.pdf"))

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/pdfs/uploads/notes.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4", rec.Body.String())

	rec = env.do(t, uploadRequest(t, "notes.txt", []byte("hello")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, uploadRequest(t, "big.pdf", bytes.Repeat([]byte("x"), 2048)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/pdfs", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSourcesAndSync(t *testing.T) {
	env := newTestEnv(t, "alice")
	deckDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(deckDir, "go.md"), []byte("Q: What is a goroutine?\nA: A lightweight thread.\n"), 0o644))

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/sources", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Add source")

	rec = env.do(t, postForm("/sources", url.Values{"path": {deckDir}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), deckDir)

	rec = env.do(t, postForm("/sources", url.Values{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/sync", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Synced")

	source, err := env.db.FindSourceByPath(context.Background(), deckDir)
	require.NoError(t, err)
	require.NotNil(t, source)

	decks, err := env.db.ListDecks(context.Background())
	require.NoError(t, err)
	var goDeck string
	for _, d := range decks {
		if d.Name == "go" && d.SourceID == source.ID {
			goDeck = d.Key()
		}
	}
	require.NotEmpty(t, goDeck)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/review/next?deck="+goDeck, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "What is a goroutine?")

	req := httptest.NewRequest(http.MethodDelete, "/sources/"+strconv.FormatInt(source.ID, 10), nil)
	rec = env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), deckDir)

	rec = env.do(t, httptest.NewRequest(http.MethodDelete, "/sources/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
