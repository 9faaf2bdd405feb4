package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	"snip.local/internal/app/shortener"
	"snip.local/internal/platform/auth"
	"snip.local/internal/platform/httpmiddleware"
	"snip.local/internal/platform/ratelimit"
)

// RegisterAPIRoutes 在 /api/v1 分组下挂载短链 API。
//
// 设计原因：
// - cmd/api 只负责“组装”和“挂载”，各业务模块自己提供 Register*Routes，避免路由散落在 main.go
// - API 路由一般用于机器调用（JSON），统一放在 /api/v1 下便于版本化
func RegisterAPIRoutes(api chi.Router, svc *shortener.Service, ts auth.TokenService, limiter *ratelimit.Limiter, baseURL string) {
	//创建短链 限流 10次/分钟
	api.With(httpmiddleware.RateLimit(limiter, "create", 10, time.Minute)).
		Post("/shorten", NewShortenHandler(svc, baseURL))

	api.Get("/analytics/{code}", NewAnalyticsHandler(svc))

	// 删除是管理员操作：短码空间是可枚举的，不能让任何人删任何链接
	api.With(httpmiddleware.AuthRequired(ts), httpmiddleware.RequireRole("admin")).
		Delete("/urls/{code}", NewDeleteHandler(svc))
}

// RegisterPublicRoutes 在根路由上挂载公开跳转入口。
//
// 跳转入口刻意不放在 /api/v1 下：短链的使用体验是直接在浏览器输入 /{code}。
// public 与 api 分开，后续做域名拆分（s.example.com 与 api.example.com）更顺滑。
func RegisterPublicRoutes(r chi.Router, svc *shortener.Service, limiter *ratelimit.Limiter) {
	//跳转 100次/分钟
	r.With(httpmiddleware.RateLimit(limiter, "redirect", 100, time.Minute)).
		Get("/{code}", NewRedirectHandler(svc))
}
