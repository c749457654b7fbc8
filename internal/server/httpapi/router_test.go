package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type mockUsers struct {
	SignUpFunc func(ctx context.Context, u, p string) (string, error)
	SignInFunc func(ctx context.Context, u, p string) (string, error)
	SearchFunc func(ctx context.Context, callerID int64, q string) ([]models.Participant, error)
}

func (m *mockUsers) SignUp(ctx context.Context, u, p string) (string, error) {
	return m.SignUpFunc(ctx, u, p)
}
func (m *mockUsers) SignIn(ctx context.Context, u, p string) (string, error) {
	return m.SignInFunc(ctx, u, p)
}
func (m *mockUsers) Search(ctx context.Context, callerID int64, q string) ([]models.Participant, error) {
	return m.SearchFunc(ctx, callerID, q)
}

type mockConversations struct {
	StartFunc   func(ctx context.Context, userID, participantID int64) (*models.ConversationSummary, error)
	ListFunc    func(ctx context.Context, userID int64) ([]*models.ConversationSummary, error)
	GetFunc     func(ctx context.Context, id, userID int64) (*models.ConversationSummary, error)
	HistoryFunc func(ctx context.Context, id, userID, before int64, limit int) ([]*models.Message, error)
}

func (m *mockConversations) Start(ctx context.Context, userID, participantID int64) (*models.ConversationSummary, error) {
	return m.StartFunc(ctx, userID, participantID)
}
func (m *mockConversations) List(ctx context.Context, userID int64) ([]*models.ConversationSummary, error) {
	return m.ListFunc(ctx, userID)
}
func (m *mockConversations) Get(ctx context.Context, id, userID int64) (*models.ConversationSummary, error) {
	return m.GetFunc(ctx, id, userID)
}
func (m *mockConversations) History(ctx context.Context, id, userID, before int64, limit int) ([]*models.Message, error) {
	return m.HistoryFunc(ctx, id, userID, before, limit)
}

type mockMedia struct {
	UploadFunc  func(ctx context.Context, name, ct string, size int64, body io.Reader) (*models.Media, error)
	PresignFunc func(ctx context.Context, key string) (string, error)
}

func (m *mockMedia) Upload(ctx context.Context, name, ct string, size int64, body io.Reader) (*models.Media, error) {
	return m.UploadFunc(ctx, name, ct, size, body)
}
func (m *mockMedia) PresignedGetURL(ctx context.Context, key string) (string, error) {
	return m.PresignFunc(ctx, key)
}

type mockPresence struct {
	got []int64
}

func (m *mockPresence) OnlineStatus(_ context.Context, ids []int64) (map[int64]bool, error) {
	m.got = ids
	out := map[int64]bool{}
	for _, id := range ids {
		out[id] = id%2 == 1
	}
	return out, nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }
func (p fakePinger) Ping(context.Context) error        { return p.err }

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

func setupTestRouter(t *testing.T, svc Services) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{SecretKey: testSecret, MaxUploadSize: 1 << 10}
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	return NewRouter(cfg, svc, NewChecker(fakePinger{}, nil, fixedCount(3)), ws, logging.Nop())
}

func bearer(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, "u", []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(r http.Handler, method, path, authz string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestSignUpAndSignIn(t *testing.T) {
	users := &mockUsers{
		SignUpFunc: func(_ context.Context, u, p string) (string, error) {
			if u == "taken" {
				return "", common.ErrorAlreadyExists
			}
			return "tok-" + u, nil
		},
		SignInFunc: func(_ context.Context, u, p string) (string, error) {
			if p != "pw" {
				return "", common.ErrorUnauthorized
			}
			return "tok-" + u, nil
		},
	}
	r := setupTestRouter(t, Services{Users: users})

	w := do(r, http.MethodPost, "/api/auth/signup", "", strings.NewReader(`{"username":"alice","password":"pw"}`), "application/json")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"token":"tok-alice"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/auth/signup", "", strings.NewReader(`{"username":"taken","password":"pw"}`), "application/json")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, "/api/auth/signup", "", strings.NewReader(`{"username":"alice"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/auth/signin", "", strings.NewReader(`{"username":"alice","password":"pw"}`), "application/json")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"token":"tok-alice"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/auth/signin", "", strings.NewReader(`{"username":"alice","password":"bad"}`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, common.ErrorUnauthorized.Error(), errorOf(t, w))
}

func TestTokenAuth(t *testing.T) {
	users := &mockUsers{SearchFunc: func(_ context.Context, callerID int64, q string) ([]models.Participant, error) {
		return []models.Participant{{ID: callerID + 1, UserName: q}}, nil
	}}
	r := setupTestRouter(t, Services{Users: users})

	w := do(r, http.MethodGet, "/api/users/search?query=bo", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/api/users/search?query=bo", "Bearer nonsense", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := auth.GenerateToken(4, "u", []byte(testSecret), -time.Minute)
	require.NoError(t, err)
	w = do(r, http.MethodGet, "/api/users/search?query=bo", "Bearer "+expired, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/api/users/search?query=bo", bearer(t, 4), nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":5,"username":"bo"}]`, w.Body.String())
}

func TestConversations(t *testing.T) {
	convs := &mockConversations{
		ListFunc: func(_ context.Context, userID int64) ([]*models.ConversationSummary, error) {
			return []*models.ConversationSummary{{ID: 1, Participants: []models.Participant{}}}, nil
		},
		StartFunc: func(_ context.Context, userID, participantID int64) (*models.ConversationSummary, error) {
			if participantID == 99 {
				return nil, common.ErrorNotFound
			}
			return &models.ConversationSummary{ID: 7}, nil
		},
		GetFunc: func(_ context.Context, id, userID int64) (*models.ConversationSummary, error) {
			if userID != 1 {
				return nil, common.ErrNotParticipant
			}
			return &models.ConversationSummary{ID: id}, nil
		},
		HistoryFunc: func(_ context.Context, id, userID, before int64, limit int) ([]*models.Message, error) {
			if id == 500 {
				return nil, errors.New("db exploded")
			}
			return []*models.Message{{ID: before - 1, ConversationID: id, ReadBy: []int64{}}}, nil
		},
	}
	r := setupTestRouter(t, Services{Conversations: convs})
	me := bearer(t, 1)

	w := do(r, http.MethodGet, "/api/conversations", me, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/api/conversations", me, strings.NewReader(`{"participantId":2}`), "application/json")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(r, http.MethodPost, "/api/conversations", me, strings.NewReader(`{"participantId":99}`), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/api/conversations", me, strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/conversations/7", me, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/conversations/7", bearer(t, 2), nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodGet, "/api/conversations/abc", me, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/conversations/7/messages?before=10&limit=5", me, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var page []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page, 1)
	assert.Equal(t, int64(9), page[0].ID)

	w = do(r, http.MethodGet, "/api/conversations/7/messages?limit=-1", me, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/conversations/500/messages", me, nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, common.ErrorInternal.Error(), errorOf(t, w))
}

func TestPresence(t *testing.T) {
	p := &mockPresence{}
	r := setupTestRouter(t, Services{Presence: p})

	w := do(r, http.MethodGet, "/api/presence?userIds=1,2,%203", bearer(t, 1), nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"1":true,"2":false,"3":true}`, w.Body.String())
	assert.Equal(t, []int64{1, 2, 3}, p.got)

	w = do(r, http.MethodGet, "/api/presence?userIds=1,x", bearer(t, 1), nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartBody(t *testing.T, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	media := &mockMedia{
		UploadFunc: func(_ context.Context, name, ct string, size int64, body io.Reader) (*models.Media, error) {
			if ct != "image/png" {
				return nil, common.ErrUnsupportedMedia
			}
			b, _ := io.ReadAll(body)
			if int64(len(b)) != size {
				t.Errorf("size %d, body %d bytes", size, len(b))
			}
			return &models.Media{URL: "/api/media/media/k.png", Type: ct, FileName: "k.png"}, nil
		},
	}
	r := setupTestRouter(t, Services{Media: media})

	body, ct := multipartBody(t, "cat.png", "image/png", "PNGDATA")
	w := do(r, http.MethodPost, "/api/upload", bearer(t, 1), body, ct)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"/api/media/media/k.png","type":"image/png","filename":"k.png"}`, w.Body.String())

	body, ct = multipartBody(t, "run.exe", "application/octet-stream", "MZ")
	w = do(r, http.MethodPost, "/api/upload", bearer(t, 1), body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w = do(r, http.MethodPost, "/api/upload", bearer(t, 1), strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = multipartBody(t, "cat.png", "image/png", "x")
	w = do(r, http.MethodPost, "/api/upload", "", body, ct)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMediaRedirect(t *testing.T) {
	media := &mockMedia{PresignFunc: func(_ context.Context, key string) (string, error) {
		if key != "/media/a.png" {
			return "", common.ErrorNotFound
		}
		return "https://s3.local/a.png?sig", nil
	}}
	r := setupTestRouter(t, Services{Media: media})

	w := do(r, http.MethodGet, "/api/media/media/a.png", "", nil, "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://s3.local/a.png?sig", w.Header().Get("Location"))

	w = do(r, http.MethodGet, "/api/media/other", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebsocketRouteAndCORS(t *testing.T) {
	r := setupTestRouter(t, Services{})

	w := do(r, http.MethodGet, "/ws", "", nil, "")
	assert.Equal(t, http.StatusTeapot, w.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/conversations", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfig(t *testing.T) {
	c := corsConfig("http://localhost:5173")
	assert.Equal(t, []string{"http://localhost:5173"}, c.AllowOrigins)
	assert.True(t, c.AllowCredentials)
	assert.False(t, c.AllowAllOrigins)

	c = corsConfig("*")
	assert.True(t, c.AllowAllOrigins)
	assert.False(t, c.AllowCredentials)
}
