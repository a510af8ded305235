package controllers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"volunteerops/app"
	"volunteerops/config"
	"volunteerops/controllers"
	"volunteerops/db"
	"volunteerops/logger"
	"volunteerops/mailer"
	"volunteerops/models"
	"volunteerops/routes"
	"volunteerops/session"
	"volunteerops/templates"
	"volunteerops/updater"
)

// memSessions keeps login sessions and flashes in memory.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*session.AppSession
	flashes  map[string][]session.Flash
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]*session.AppSession{}, flashes: map[string][]session.Flash{}}
}

func (m *memSessions) Create(_ context.Context, id, userID string) (*session.AppSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	as := &session.AppSession{UserID: userID, CSRF: "csrf-" + id, IssuedAt: time.Now().Unix()}
	m.sessions[id] = as
	return as, nil
}

func (m *memSessions) Get(_ context.Context, id string) (*session.AppSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if as, ok := m.sessions[id]; ok {
		return as, nil
	}
	return nil, errors.New("session not found")
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessions) RevokeAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, as := range m.sessions {
		if as.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memSessions) PushFlash(_ context.Context, id string, f session.Flash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flashes[id] = append(m.flashes[id], f)
	return nil
}

func (m *memSessions) PopFlashes(_ context.Context, id string) ([]session.Flash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs := m.flashes[id]
	delete(m.flashes, id)
	return fs, nil
}

func (m *memSessions) MarkSeen(context.Context, string, time.Duration) bool { return true }
func (m *memSessions) TTL() time.Duration                                   { return time.Hour }

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	fail bool
}

func (f *fakeMailer) Send(_ context.Context, m mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, m)
	return nil
}

type fakeFeed struct{ version string }

func (f fakeFeed) Latest(context.Context) (*updater.Release, error) {
	return &updater.Release{Version: f.version, ZipURL: "https://example.org/r.zip"}, nil
}

type noopSteps struct{ calls *[]string }

func (n noopSteps) Backup(context.Context) (string, error) {
	*n.calls = append(*n.calls, "backup")
	return "/backups/b.zip", nil
}
func (n noopSteps) Download(context.Context, string) (string, error) {
	*n.calls = append(*n.calls, "download")
	return "/tmp/r.zip", nil
}
func (n noopSteps) Extract(context.Context, string) (string, error) {
	*n.calls = append(*n.calls, "extract")
	return "", errors.New("corrupt archive")
}
func (n noopSteps) Apply(context.Context, string) error { *n.calls = append(*n.calls, "apply"); return nil }
func (n noopSteps) Migrate(context.Context) error       { *n.calls = append(*n.calls, "migrate"); return nil }
func (n noopSteps) Patch(context.Context, string) error { *n.calls = append(*n.calls, "patch"); return nil }

type harness struct {
	t           *testing.T
	r           *gin.Engine
	repo        *db.Repo
	sessions    *memSessions
	mail        *fakeMailer
	updateCalls []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:ctl_%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(conn))

	tmpl, err := templates.Load(app.TemplateFuncs())
	require.NoError(t, err)

	h := &harness{t: t, repo: db.NewRepo(conn), sessions: newMemSessions(), mail: &fakeMailer{}}
	lm := mailer.NewLoggingMailer(h.mail, h.repo)
	nl := mailer.NewNewsletterSender(lm, h.repo, 0)
	nl.Sleep = func(time.Duration) {}
	steps := noopSteps{calls: &h.updateCalls}

	srv := &controllers.Srv{
		Repo:       h.repo,
		Sessions:   h.sessions,
		Mail:       lm,
		Newsletter: nl,
		Updater: &updater.Pipeline{
			Current: "3.0.0", Feed: fakeFeed{version: "3.1.0"},
			Backup: steps, Download: steps, Extract: steps, Apply: steps, Migrate: steps, Patch: steps,
		},
		Cfg: config.Config{
			WebOrigin:   "http://localhost:3001",
			AppVersion:  "3.0.0",
			Environment: "test",
			SMTP:        config.SMTP{AppName: "VolunteerOps"},
		},
	}

	r := gin.New()
	r.Use(logger.Middleware())
	r.SetHTMLTemplate(tmpl)
	routes.Register(r, srv)
	h.r = r
	return h
}

func (h *harness) user(username, role string) *models.User {
	h.t.Helper()
	u := &models.User{Username: username, DisplayName: strings.Split(username, "@")[0], Role: role, IsActive: true}
	require.NoError(h.t, h.repo.CreateUser(context.Background(), u))
	return u
}

func (h *harness) item(barcode string) *models.InventoryItem {
	h.t.Helper()
	it := &models.InventoryItem{Barcode: barcode, Name: "Radio " + barcode, Category: "radio", Quantity: 1}
	require.NoError(h.t, h.repo.CreateItem(context.Background(), it))
	return it
}

// login opens a session for u and returns its id.
func (h *harness) login(u *models.User) string {
	sid := "sid-" + u.ID
	_, err := h.sessions.Create(context.Background(), sid, u.ID)
	require.NoError(h.t, err)
	return sid
}

func (h *harness) do(req *http.Request, sid string) *httptest.ResponseRecorder {
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: app.AppSessionCookie, Value: sid})
	}
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)
	return w
}

func (h *harness) get(sid, path string) *httptest.ResponseRecorder {
	return h.do(httptest.NewRequest(http.MethodGet, path, nil), sid)
}

func httptestForm(method, path string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// post submits a form with the session's CSRF token.
func (h *harness) post(sid, path string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	if sid != "" {
		form.Set(app.CSRFField, "csrf-"+sid)
	}
	return h.do(httptestForm(http.MethodPost, path, form), sid)
}

// flashes drains the queued messages of sid.
func (h *harness) flashes(sid string) []session.Flash {
	fs, _ := h.sessions.PopFlashes(context.Background(), sid)
	return fs
}

func (h *harness) lastFlash(sid string) session.Flash {
	fs := h.flashes(sid)
	require.NotEmpty(h.t, fs)
	return fs[len(fs)-1]
}
