package status

import (
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"github.com/gin-gonic/gin"

	logx "schedbot/pkg/logx"
)

// EnablePprof mounts the runtime profiler under /debug/pprof/. Binding a
// non-loopback address requires a token. Call before Start.
func (s *Server) EnablePprof(token string) error {
	token = strings.TrimSpace(token)
	if token == "" && !isLoopbackAddr(s.srv.Addr) {
		return errors.New("pprof on a non-loopback address requires a token")
	}
	s.pprof = true
	s.pprofToken = token
	s.srv.Handler = s.Router()
	s.log.Info("pprof enabled", logx.Bool("token_set", token != ""))
	return nil
}

func (s *Server) mountPprof(r *gin.Engine) {
	g := r.Group("/debug/pprof", bearer(s.pprofToken))
	g.GET("/", gin.WrapF(hpprof.Index))
	g.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
	g.GET("/profile", gin.WrapF(hpprof.Profile))
	g.GET("/symbol", gin.WrapF(hpprof.Symbol))
	g.POST("/symbol", gin.WrapF(hpprof.Symbol))
	g.GET("/trace", gin.WrapF(hpprof.Trace))
	g.GET("/:name", func(c *gin.Context) {
		hpprof.Handler(c.Param("name")).ServeHTTP(c.Writer, c.Request)
	})
}

// bearer accepts "Authorization: Bearer <token>" or ?token=<token>.
func bearer(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		}
		if got != token {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
