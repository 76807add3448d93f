package server

import (
	_ "embed"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

//go:embed ui/index.html
var indexHTML string

// WithUI serves the built-in front-end page at "/".
func WithUI() Option { return func(r *Router) { r.ui = true } }

func (r *Router) handleIndex(c *gin.Context) {
	page := strings.Replace(indexHTML, "{{BASE}}", r.basePath, 1)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}
