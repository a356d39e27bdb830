package metrics

import (
	"net/http"
	"regexp"
	"time"
)

// idSegment matches path segments that carry caller-chosen identifiers, so
// metric labels stay low-cardinality.
var idSegment = regexp.MustCompile(`^/v1/(nodes|usage|projects)/[^/]+`)

// statusRecorder wraps http.ResponseWriter to capture the status code.
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

// Middleware records request count and latency for each request, with the
// path normalized to the route shape. A panicking handler is recorded as a
// 500 and not re-raised.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		startTime := time.Now()

		defer func() {
			duration := time.Since(startTime).Seconds()

			statusCode := recorder.statusCode
			if statusCode == 0 {
				statusCode = http.StatusInternalServerError
			}

			normalizedPath := normalizePath(r.URL.Path)

			statusStr := http.StatusText(statusCode)
			if statusStr == "" {
				statusStr = "UNKNOWN"
			}

			RecordRequest(r.Method, normalizedPath, statusStr)
			RecordRequestDuration(r.Method, normalizedPath, statusStr, duration)

			if err := recover(); err != nil {
				if !recorder.written {
					recorder.WriteHeader(http.StatusInternalServerError)
				}
			}
		}()

		next.ServeHTTP(recorder, r)
	})
}

// normalizePath collapses identifier segments so each route contributes one
// label value:
//
//	/v1/nodes/node-7  -> /v1/nodes/:id
//	/v1/usage/proj-12 -> /v1/usage/:id
func normalizePath(path string) string {
	return idSegment.ReplaceAllStringFunc(path, func(m string) string {
		sub := idSegment.FindStringSubmatch(m)
		return "/v1/" + sub[1] + "/:id"
	})
}
