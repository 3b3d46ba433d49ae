package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quickaccess/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func testConfig() config.SessionConfig {
	return config.SessionConfig{
		Secret:     "test-secret",
		CookieName: "qa_session",
		TTLHours:   1,
	}
}

func establish(t *testing.T, m *Manager, userID uint) *http.Cookie {
	gin.SetMode(gin.TestMode)
	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	assert.NoError(t, m.Establish(c, userID))

	cookies := rr.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie set")
	}
	return cookies[0]
}

func TestEstablishAndCurrent(t *testing.T) {
	m := NewManager(testConfig())
	cookie := establish(t, m, 42)

	assert.Equal(t, "qa_session", cookie.Name)
	assert.True(t, cookie.HttpOnly)

	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(cookie)

	id, ok := m.Current(c)
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)
}

func TestCurrentWithoutCookie(t *testing.T) {
	m := NewManager(testConfig())

	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := m.Current(c)
	assert.False(t, ok)
}

func TestCurrentRejectsForgedToken(t *testing.T) {
	m := NewManager(testConfig())
	other := NewManager(config.SessionConfig{
		Secret:     "different-secret",
		CookieName: "qa_session",
		TTLHours:   1,
	})
	cookie := establish(t, other, 42)

	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(cookie)

	_, ok := m.Current(c)
	assert.False(t, ok)
}

func TestCurrentRejectsGarbage(t *testing.T) {
	m := NewManager(testConfig())

	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: "qa_session", Value: "not-a-jwt"})

	_, ok := m.Current(c)
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	m := NewManager(testConfig())

	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	m.Invalidate(c)

	cookies := rr.Result().Cookies()
	assert.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.True(t, cookies[0].Expires.Before(time.Now()))
}
