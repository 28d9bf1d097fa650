package httpapi

import (
	"context"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"todoapp/internal/storage"
	"todoapp/internal/tracing"
	logx "todoapp/pkg/logx"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer (pprof streams).
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// observe opens a server span and writes one access log line per request.
func observe(log logx.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracing.Start(r.Context(), r.Method+" "+r.URL.Path, trace.SpanKindServer,
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		)
		rec := &statusRecorder{ResponseWriter: w}
		r2 := r.WithContext(ctx)
		next.ServeHTTP(rec, r2)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		if r2.Pattern != "" {
			span.SetName(r2.Pattern)
			span.SetAttributes(attribute.String("http.route", r2.Pattern))
		}
		tracing.SetHTTPStatus(span, rec.status)
		span.End()

		fields := []logx.Field{
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", rec.status),
			logx.Int("bytes", rec.bytes),
			logx.Duration("took", time.Since(start)),
		}
		if sc := span.SpanContext(); sc.HasTraceID() {
			fields = append(fields, logx.String("trace_id", sc.TraceID().String()))
		}
		switch {
		case rec.status >= 500:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	})
}

// recoverer turns handler panics into 500 responses.
func recoverer(log logx.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				log.Error("handler panicked", logx.String("path", r.URL.Path), logx.Any("panic", v), logx.String("stack", string(debug.Stack())))
				writeErrorMsg(w, http.StatusInternalServerError, msgServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// cors allows every origin when origins is empty.
func cors(origins []string, next http.Handler) http.Handler {
	allowAll := len(origins) == 0 || slices.Contains(origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		h := w.Header()
		switch {
		case allowAll:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(origins, origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET,HEAD,PUT,PATCH,POST,DELETE")
			if reqHdr := r.Header.Get("Access-Control-Request-Headers"); reqHdr != "" {
				h.Set("Access-Control-Allow-Headers", reqHdr)
			} else {
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limitBody(max int64, next http.Handler) http.Handler {
	if max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	})
}

type userKey struct{}

func userFrom(ctx context.Context) storage.User {
	u, _ := ctx.Value(userKey{}).(storage.User)
	return u
}

// bearerToken returns the second space-separated field of the Authorization header.
func bearerToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// requireAuth resolves the bearer token and stores the user in the request context.
func (s *Service) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.deps.Auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("enduser.id", u.ID))
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	}
}
