package shortener

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidURL 是领域层对“URL 不合法”的统一错误，上层稳定映射成 400。
var ErrInvalidURL = errors.New("invalid url")

// ValidateURL 校验长链接是否满足最小要求：
// - scheme 必须是 http/https
// - host 不能为空
// 更细的规则（黑名单、长度上限等）是部署侧的事，不放在这里。
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if strings.TrimSpace(u.Host) == "" {
		return ErrInvalidURL
	}
	return nil
}
