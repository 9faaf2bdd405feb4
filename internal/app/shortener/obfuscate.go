package shortener

import (
	"errors"
	"fmt"
	"math/bits"
)

// Mod 是混淆置换的定义域大小：62^6，即 6 位 base62 短码能表示的整数个数。
// 计数器的上界（COUNTER_END）必须落在 [0, Mod) 内，否则短码会超过 6 位。
const Mod = 56800235584 // 62^6

// 默认的乘法置换参数：PRIME 与 Mod 互素，INVERSE 是它在模 Mod 下的乘法逆元。
// 两个常量成对出现，改其中一个必须重新算另一个。
const (
	defaultPrime   = 19260817
	defaultInverse = 4022397873
)

var ErrOutOfDomain = errors.New("id out of obfuscation domain")

// Obfuscator 把顺序分配的 ID 映射成看起来随机的数（以及逆映射）。
//
// 做法是模乘置换：obfuscate(id) = id * PRIME mod Mod。
// 这只是防止短码暴露创建顺序/总量、防止顺手枚举相邻短码，
// 不是加密——有心人收集足够多的样本可以反推出 PRIME。
type Obfuscator struct {
	prime   uint64
	inverse uint64
}

// NewObfuscator 使用内置参数构造混淆器。
func NewObfuscator() (*Obfuscator, error) {
	return NewObfuscatorWith(defaultPrime, defaultInverse)
}

// NewObfuscatorWith 校验参数后构造混淆器。
// (prime * inverse) mod Mod != 1 说明配置错了，必须在启动时大声失败，
// 否则 deobfuscate 会把短码解到别人的链接上。
func NewObfuscatorWith(prime, inverse uint64) (*Obfuscator, error) {
	if prime == 0 || inverse == 0 {
		return nil, errors.New("obfuscator: prime and inverse must be non-zero")
	}
	if mulMod(prime%Mod, inverse%Mod) != 1 {
		return nil, fmt.Errorf("obfuscator: %d and %d are not modular inverses under %d", prime, inverse, uint64(Mod))
	}
	return &Obfuscator{prime: prime, inverse: inverse}, nil
}

// Obfuscate 是 [0, Mod) 上的双射；输入出界返回 ErrOutOfDomain。
func (o *Obfuscator) Obfuscate(id int64) (int64, error) {
	if id < 0 || id >= Mod {
		return 0, ErrOutOfDomain
	}
	return int64(mulMod(uint64(id), o.prime)), nil
}

// Deobfuscate 满足 Deobfuscate(Obfuscate(id)) == id。
func (o *Obfuscator) Deobfuscate(x int64) (int64, error) {
	if x < 0 || x >= Mod {
		return 0, ErrOutOfDomain
	}
	return int64(mulMod(uint64(x), o.inverse)), nil
}

// mulMod 计算 (a*b) mod Mod。
// x*INVERSE 最大约 2^95，会溢出 uint64，所以走 128 位乘法再取余。
func mulMod(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return bits.Rem64(hi, lo, Mod)
}
