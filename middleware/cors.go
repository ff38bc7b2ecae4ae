package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
)

// CORSMiddleware allows the frontend at origin to call the API from a
// browser. Preflight requests are answered here and never reach a handler.
func CORSMiddleware(origin string) gin.HandlerFunc {
	policy := cors.New(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", TraceIDHeader, TraceParentHeader},
		ExposedHeaders:   []string{TraceIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})

	return func(c *gin.Context) {
		passed := false
		policy.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)

		if !passed {
			c.Abort()
		}
	}
}
