package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"snip.local/internal/app/shortener"
	"snip.local/internal/platform/metrics"
)

// handler 只做“翻译”：HTTP <-> 领域（参数校验、错误映射、响应格式），避免堆业务。
// 领域逻辑在 internal/app/shortener，本包不直接碰存储和缓存。

type ShortenRequest struct {
	LongURL string `json:"longUrl"`
}

type ShortenResponse struct {
	Code     string `json:"code"`
	ShortURL string `json:"shortUrl"`
}

// buildShortURL 拼出对外短链接。优先用配置的 BASE_URL；
// 没配时从请求头推断（经反代时靠 X-Forwarded-Proto）。
func buildShortURL(r *http.Request, baseURL, code string) string {
	if baseURL != "" {
		return strings.TrimRight(baseURL, "/") + "/" + code
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
	}
	if r.Host == "" {
		return "/" + code
	}
	return scheme + "://" + r.Host + "/" + code
}

func NewShortenHandler(svc *shortener.Service, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ShortenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}

		code, err := svc.Create(r.Context(), req.LongURL)
		if err != nil {
			switch {
			case errors.Is(err, shortener.ErrInvalidURL):
				writeError(w, http.StatusBadRequest, "invalid url")
			case errors.Is(err, shortener.ErrRangeExceeded), errors.Is(err, shortener.ErrCounterNotSeeded):
				// 容量耗尽或计数器没初始化：部署问题，对外统一 500
				writeError(w, http.StatusInternalServerError, "short url create failed")
			default:
				writeError(w, http.StatusInternalServerError, "short url create failed")
			}
			return
		}

		writeJSON(w, http.StatusCreated, ShortenResponse{
			Code:     code,
			ShortURL: buildShortURL(r, baseURL, code),
		})
	}
}

func NewRedirectHandler(svc *shortener.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		// 二维码里的短链带 ?source=qr，用来区分扫码和普通点击
		typ := shortener.EventClick
		if r.URL.Query().Get("source") == "qr" {
			typ = shortener.EventScan
		}

		url, err := svc.Resolve(r.Context(), code, typ)
		if err != nil {
			switch {
			case errors.Is(err, shortener.ErrInvalidCode):
				writeError(w, http.StatusBadRequest, "invalid code")
			case errors.Is(err, shortener.ErrNotFound):
				writeError(w, http.StatusNotFound, "url not found")
			default:
				writeError(w, http.StatusInternalServerError, "service unavailable")
			}
			return
		}

		metrics.ShortlinkRedirects.Inc()
		// 302 而不是 301：永久重定向会被浏览器缓存，统计就不准了
		http.Redirect(w, r, url, http.StatusFound)
	}
}

func NewDeleteHandler(svc *shortener.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		if err := svc.Delete(r.Context(), code); err != nil {
			switch {
			case errors.Is(err, shortener.ErrInvalidCode):
				writeError(w, http.StatusBadRequest, "invalid code")
			case errors.Is(err, shortener.ErrNotFound):
				writeError(w, http.StatusNotFound, "url not found")
			default:
				writeError(w, http.StatusInternalServerError, "delete failed")
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"message": "URL deleted successfully"})
	}
}

func NewAnalyticsHandler(svc *shortener.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		data, err := svc.Analytics(r.Context(), code)
		if err != nil {
			switch {
			case errors.Is(err, shortener.ErrInvalidCode):
				writeError(w, http.StatusBadRequest, "invalid code")
			case errors.Is(err, shortener.ErrNotFound):
				writeError(w, http.StatusNotFound, "url not found")
			default:
				writeError(w, http.StatusInternalServerError, "analytics query failed")
			}
			return
		}

		writeJSON(w, http.StatusOK, data)
	}
}
