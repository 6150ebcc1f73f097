package metrics

import (
	"net/http"
	"regexp"
	"time"
)

// idSegment matches numeric and uuid path segments.
var idSegment = regexp.MustCompile(`/(\d+|[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})(/|$)`)

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.statusCode = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// Middleware records request count and latency for every request.
// A panicking handler is recorded as 500 and the panic is swallowed.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		startTime := time.Now()

		defer func() {
			panicked := recover() != nil
			if panicked && !recorder.written {
				recorder.WriteHeader(http.StatusInternalServerError)
			}
			if panicked {
				recorder.statusCode = http.StatusInternalServerError
			}

			statusStr := http.StatusText(recorder.statusCode)
			if statusStr == "" {
				statusStr = "UNKNOWN"
			}
			path := normalizePath(r.URL.Path)

			RecordRequest(r.Method, path, statusStr)
			RecordRequestDuration(r.Method, path, statusStr, time.Since(startTime).Seconds())
		}()

		next.ServeHTTP(recorder, r)
	})
}

// normalizePath replaces id segments to keep label cardinality bounded.
//
//	/tokens/123 -> /tokens/:id
//	/users/0b6e.../roles -> /users/:id/roles
func normalizePath(path string) string {
	for {
		next := idSegment.ReplaceAllString(path, "/:id$2")
		if next == path {
			return next
		}
		path = next
	}
}
