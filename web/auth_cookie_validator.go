package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	authCookieName = "auth"
	authTokenTTL   = time.Hour
)

// generateAuthToken signs username together with the token expiry:
// base64(username)|expiry-unix|base64(hmac).
func generateAuthToken(username, secretKey string, expiresAt time.Time) string {
	expiry := strconv.FormatInt(expiresAt.Unix(), 10)
	signature := signToken(username, expiry, secretKey)
	return base64.StdEncoding.EncodeToString([]byte(username)) + "|" + expiry + "|" + base64.StdEncoding.EncodeToString(signature)
}

func signToken(username, expiry, secretKey string) []byte {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(username))
	mac.Write([]byte{'|'})
	mac.Write([]byte(expiry))
	return mac.Sum(nil)
}

// usernameFromToken returns the user a token was issued for, or false when
// the signature does not match secretKey or the token expired before now.
func usernameFromToken(token, secretKey string, now time.Time) (string, bool) {
	parts := strings.Split(token, "|")
	if len(parts) != 3 {
		return "", false
	}
	usernameBytes, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", false
	}
	expiresAt, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", false
	}
	expectedMac, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", false
	}

	if !hmac.Equal(expectedMac, signToken(string(usernameBytes), parts[1], secretKey)) {
		return "", false
	}
	if !now.Before(time.Unix(expiresAt, 0)) {
		return "", false
	}
	return string(usernameBytes), true
}

func isValidAuthToken(token, secretKey string) bool {
	_, ok := usernameFromToken(token, secretKey, time.Now())
	return ok
}

func isAuthenticated(r *http.Request, secretKey string) bool {
	cookie, err := r.Cookie(authCookieName)
	if err != nil {
		return false
	}
	return isValidAuthToken(cookie.Value, secretKey)
}
