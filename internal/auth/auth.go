// Package auth guards the /api surface with a shared API key.
//
// It intentionally avoids policy decisions and storage concerns.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// HeaderName carries the client's key on every /api request.
const HeaderName = "X-Api-Key"

// Validator validates a presented API key.
type Validator interface {
	Validate(key string) error
}

// StaticKey validates against a single shared key configured at startup.
// An empty configured key disables authentication entirely.
type StaticKey struct {
	Key string
}

func (s StaticKey) Validate(key string) error {
	if s.Key == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(s.Key), []byte(key)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(key string) error

func (f FuncValidator) Validate(key string) error {
	return f(key)
}

// Middleware rejects requests whose key does not validate, before any
// other handler work runs.
func Middleware(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := strings.TrimSpace(c.GetHeader(HeaderName))
		if err := v.Validate(provided); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
