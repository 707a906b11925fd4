// Package auth provides the static Basic-Auth guard for protected routes.
//
// A single credential pair covers the webhook and the admin read APIs.
// There are no user accounts, sessions, or key issuance.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireBasic rejects requests that do not carry the expected credential.
//
// The comparison is constant-time; the failure body never distinguishes a
// missing header from a wrong password.
func RequireBasic(username, password string) gin.HandlerFunc {
	wantUser := []byte(username)
	wantPass := []byte(password)

	return func(c *gin.Context) {
		user, pass, ok := decodeBasic(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c)
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(user), wantUser) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), wantPass) == 1
		if !userOK || !passOK {
			unauthorized(c)
			return
		}

		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
}

// decodeBasic extracts the credential pair from an Authorization header.
func decodeBasic(header string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}

	user, pass, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", false
	}
	return user, pass, true
}
