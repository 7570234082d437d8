package web

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuthToken(t *testing.T) {
	token := generateAuthToken("admin", "key", time.Now().Add(authTokenTTL))

	username, ok := usernameFromToken(token, "key", time.Now())
	assert.True(t, ok)
	assert.Equal(t, "admin", username)

	assert.False(t, isValidAuthToken(token, "other-key"))
	assert.False(t, isValidAuthToken("garbage", "key"))
	assert.False(t, isValidAuthToken("a|b|c", "key"))
	assert.False(t, isValidAuthToken("!!!|1|???", "key"))
}

func TestAuthToken_Expires(t *testing.T) {
	issued := time.Now()
	token := generateAuthToken("admin", "key", issued.Add(authTokenTTL))

	_, ok := usernameFromToken(token, "key", issued.Add(authTokenTTL-time.Minute))
	assert.True(t, ok)

	_, ok = usernameFromToken(token, "key", issued.Add(authTokenTTL+time.Second))
	assert.False(t, ok)
}

func TestAuthToken_ExpiryIsSigned(t *testing.T) {
	token := generateAuthToken("admin", "key", time.Now().Add(-time.Minute))
	parts := strings.Split(token, "|")
	parts[1] = strconv.FormatInt(time.Now().Add(24*time.Hour).Unix(), 10)

	assert.False(t, isValidAuthToken(strings.Join(parts, "|"), "key"))
}

func TestIsAuthenticated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/hangfire/stats", nil)
	assert.False(t, isAuthenticated(req, "key"))

	req.AddCookie(&http.Cookie{Name: authCookieName, Value: generateAuthToken("admin", "key", time.Now().Add(authTokenTTL))})
	assert.True(t, isAuthenticated(req, "key"))

	expired := httptest.NewRequest(http.MethodGet, "/hangfire/stats", nil)
	expired.AddCookie(&http.Cookie{Name: authCookieName, Value: generateAuthToken("admin", "key", time.Now().Add(-time.Second))})
	assert.False(t, isAuthenticated(expired, "key"))
}
