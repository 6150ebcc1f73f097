package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/sipico/admin-auth/internal/logging"
)

// maxLoggedBody truncates logged bodies.
const maxLoggedBody = 4 << 10

// HTTPLogging logs one line per request at INFO and, when the logger has
// DEBUG enabled, the masked request and response bodies as well.
func HTTPLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := Logger(r.Context(), logger)
			debug := logger.Enabled(r.Context(), slog.LevelDebug)

			var reqBody []byte
			if debug && r.Body != nil {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					log.Warn("failed to read request body", "error", err)
				}
				reqBody = body
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			if debug {
				rec.body = new(bytes.Buffer)
			}

			start := time.Now()
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.statusCode,
				"duration_ms", duration.Milliseconds(),
			)
			if debug {
				log.Debug("http exchange",
					"query", r.URL.RawQuery,
					"headers", maskHeaders(r.Header),
					"request_body", maskBody(reqBody),
					"response_body", maskBody(rec.body.Bytes()),
				)
			}
		})
	}
}

func maskHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(v) > 0 {
			out[k] = logging.MaskValue(k, v[0])
		}
	}
	return out
}

// maskBody renders body for the log. JSON values are masked by key.
func maskBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !utf8.Valid(body) {
		return fmt.Sprintf("[binary data, %d bytes]", len(body))
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return truncate(string(body))
	}
	masked, err := json.Marshal(maskJSON("", doc))
	if err != nil {
		return truncate(string(body))
	}
	return truncate(string(masked))
}

func maskJSON(key string, v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			val[k] = maskJSON(k, child)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = maskJSON(key, child)
		}
		return val
	case string:
		return logging.MaskValue(key, val)
	default:
		return v
	}
}

func truncate(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "...(truncated)"
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	if r.body != nil {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}
