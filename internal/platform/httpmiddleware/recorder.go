package httpmiddleware

import "net/http"

// responseRecorder 包一层 ResponseWriter，记下状态码和响应字节数，
// 访问日志和指标中间件都靠它。
type responseRecorder struct {
	http.ResponseWriter
	status  int
	size    int
	written bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.written {
		r.status = status
		r.written = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.written = true
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}
