package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "dashboard_session", time.Hour, false), mr
}

func TestSessionRoundTrip(t *testing.T) {
	manager, mr := newTestManager(t)
	ctx := context.Background()

	sess, err := manager.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.Set("dashboardTheme", "dark")
	sess.AddFlash(FlashMessage{Kind: FlashSuccess, Message: "Loaded 4 downloads."})

	rr := httptest.NewRecorder()
	require.NoError(t, manager.Commit(ctx, rr, nil, sess))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sess.ID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.True(t, mr.Exists("session:"+sess.ID))
	assert.Equal(t, time.Hour, mr.TTL("session:"+sess.ID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	loaded, err := manager.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "dark", loaded.Get("dashboardTheme"))

	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Loaded 4 downloads.", flash.Message)
	assert.Nil(t, loaded.PopFlash())
}

func TestSessionFlashConsumedOnce(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	sess := NewSession()
	sess.AddFlash(FlashMessage{Kind: FlashError, Message: "boom"})
	require.NoError(t, manager.Commit(ctx, httptest.NewRecorder(), nil, sess))

	load := func() *Session {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "dashboard_session", Value: sess.ID})
		loaded, err := manager.Load(ctx, req)
		require.NoError(t, err)
		return loaded
	}

	first := load()
	require.NotNil(t, first.PopFlash())
	require.NoError(t, manager.Commit(ctx, httptest.NewRecorder(), nil, first))

	assert.Nil(t, load().PopFlash())
}

func TestSessionLoadRejectsForeignCookie(t *testing.T) {
	manager, _ := newTestManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "dashboard_session", Value: "../../etc/passwd"})
	sess, err := manager.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "../../etc/passwd", sess.ID)
}

func TestSessionLoadExpiredKeepsID(t *testing.T) {
	manager, _ := newTestManager(t)
	id := NewSession().ID
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "dashboard_session", Value: id})
	sess, err := manager.Load(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Empty(t, sess.Get(CSRFSessionKey))
}

func TestCSRFTokens(t *testing.T) {
	csrf := NewCSRFManager("secret")
	sess := NewSession()
	ctx := ContextWithSession(context.Background(), sess)

	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, csrf.VerifyToken(ctx, sess, token))
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, token+"x"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, NewSession(), token), ErrCSRFTokenMissing)

	_, err = csrf.EnsureToken(ctx, nil)
	assert.ErrorIs(t, err, ErrSessionMissing)
}

func TestClientScope(t *testing.T) {
	assert.Empty(t, ClientScope(context.Background()))
	sess := NewSession()
	assert.Equal(t, sess.ID, ClientScope(ContextWithSession(context.Background(), sess)))
}
