package shortener

import (
	"errors"
	"strings"
)

// base62 编码表：数字、大写、小写，顺序固定。
//
// 注意：这个顺序本身就是双射的定义——换了顺序等于换了编码，
// 已经发出去的短码会全部解错。只能追加说明，不能改表。
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const codecBase = int64(len(alphabet))

// 62^10 < 2^63：10 位以内解码不会溢出 int64。
// 合法短码最长 6 位（见 obfuscate.go 的 Mod），更长的输入一定不是我们发出的。
const maxCodeLen = 10

var (
	ErrNegativeNumber   = errors.New("number must be non-negative")
	ErrInvalidCharacter = errors.New("invalid character in base62 string")
)

// EncodeBase62 将非负整数编码为最短的 base62 字符串。
// 约定：0 编码为 "0"（编码表的第一个字符），无前导补位。
func EncodeBase62(n int64) (string, error) {
	if n < 0 {
		return "", ErrNegativeNumber
	}
	if n == 0 {
		return string(alphabet[0]), nil
	}

	var buf [maxCodeLen]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = alphabet[n%codecBase]
		n /= codecBase
	}
	return string(buf[i:]), nil
}

// DecodeBase62 是 EncodeBase62 的精确逆：decode(encode(n)) == n。
// 出现编码表之外的字符返回 ErrInvalidCharacter。
func DecodeBase62(s string) (int64, error) {
	if s == "" || len(s) > maxCodeLen {
		return 0, ErrInvalidCharacter
	}

	var n int64
	for i := 0; i < len(s); i++ {
		idx := strings.IndexByte(alphabet, s[i])
		if idx < 0 {
			return 0, ErrInvalidCharacter
		}
		n = n*codecBase + int64(idx)
	}
	return n, nil
}
