package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter 记录所有已签发的短码，用来在持久层之前挡掉乱猜的短码。
// warmed 标记过滤器是否已经灌入过存量数据：预热完成之前它的否定答案不可信
// （老短码会被误判为不存在），调用方必须先检查 Warmed。
type BloomFilter struct {
	filter *bloom.BloomFilter
	warmed bool
	mu     sync.RWMutex
}

// NewBloomFilter 创建布隆过滤器
// expectedItems: 预期存储的元素数量
// falsePositiveRate: 误判率（建议 0.01 即 1%）
func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	return &BloomFilter{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

func (b *BloomFilter) Add(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter.AddString(code)
}

// MightExist 检查元素是否可能存在
// 返回 false 表示一定不存在
// 返回 true 表示可能存在（有误判率）
func (b *BloomFilter) MightExist(code string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.TestString(code)
}

// MarkWarmed 标记预热完成。只在启动时灌完存量短码后调用一次。
func (b *BloomFilter) MarkWarmed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.warmed = true
}

func (b *BloomFilter) Warmed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.warmed
}

// Count 返回已添加的元素数量（估算）
func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}
