package middleware

import (
	"log"
	"net/http"

	"github.com/varejoops/checkops/config"
	"github.com/varejoops/checkops/models"
)

// GetUser loads the authenticated user with sector assignments, falling back
// to a minimal user built from claims when the row is gone.
func GetUser(r *http.Request) models.User {
	c := GetClaims(r)
	if c == nil {
		return models.User{}
	}

	var user models.User
	if err := config.DB.
		Preload("StoreSectors").
		First(&user, "id = ?", c.UserID).Error; err == nil {
		return user
	}

	return models.User{
		Name:  c.Name,
		Email: c.Email,
	}
}

// SecurityMiddleware sets baseline response headers on every API response
func SecurityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		if r.URL.Path != "/healthz" {
			log.Printf("📡 %s %s", r.Method, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}
