package main

import (
	"fmt"
	"log"
	"os"

	"snip.local/internal/platform/auth"
	"snip.local/internal/platform/config"
)

// 签发一个 admin 角色的 JWT，给 DELETE /api/v1/urls/{code} 这类管理操作用。
// 密钥等配置和 API 服务共用同一份 .env。
func main() {
	if len(os.Args) != 2 {
		log.Fatal("usage: go run ./cmd/tools/admintoken <user-id>")
	}

	cfg := config.Load()
	ts, err := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		log.Fatal(err)
	}

	token, err := ts.Sign(os.Args[1], "admin")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(token)
}
