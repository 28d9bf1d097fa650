package httpapi

import (
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	logx "todoapp/pkg/logx"
)

func (s *Service) mountPprof(mux *http.ServeMux, cfg Config) {
	addr := listenAddr(cfg)
	tok := strings.TrimSpace(cfg.Pprof.Token)
	if tok == "" && !isLoopbackAddr(addr) {
		s.logger().Error("pprof not mounted: non-loopback addr requires a token", logx.String("addr", addr))
		return
	}

	prefix := normalizePrefix(cfg.Pprof.Prefix)
	base := strings.TrimSuffix(prefix, "/")
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(tok, h) }

	mux.HandleFunc("GET "+prefix, wrap(pprofIndexAt(prefix)))
	mux.HandleFunc("GET "+base+"/cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc("GET "+base+"/profile", wrap(hpprof.Profile))
	mux.HandleFunc("GET "+base+"/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc("POST "+base+"/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc("GET "+base+"/trace", wrap(hpprof.Trace))
	mux.HandleFunc("GET "+base, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, prefix, http.StatusPermanentRedirect)
	})
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == token {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		if ah := r.Header.Get("Authorization"); ah != "" {
			const p = "Bearer "
			if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == token {
				h(w, r)
				return
			}
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// pprof.Index assumes requests are rooted at /debug/pprof/, so the path is
// rewritten for custom prefixes.
func pprofIndexAt(prefix string) http.HandlerFunc {
	canon := normalizePrefix(prefix)
	return func(w http.ResponseWriter, r *http.Request) {
		suffix := strings.TrimPrefix(r.URL.Path, canon)
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + suffix
		hpprof.Index(w, r2)
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
