package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// 错误分类（上层据此映射状态码）：
// - ErrInvalidURL / ErrInvalidCode：客户端给错了东西，4xx，不重试
// - ErrNotFound：短码合法但链接不存在，404
// - ErrCounterNotSeeded / ErrRangeExceeded / ErrDuplicateID：配置错误或容量耗尽，
//   5xx，必须记日志并报警，盲目重试没有意义
// - ErrUnavailable：持久层暂时不可达，5xx，重试策略交给部署侧
var (
	ErrNotFound         = errors.New("short link not found")
	ErrInvalidCode      = errors.New("invalid code")
	ErrUnavailable      = errors.New("store unavailable")
	ErrCounterNotSeeded = errors.New("counter not initialized for this server")
	ErrRangeExceeded    = errors.New("counter has exceeded the maximum value")
	ErrDuplicateID      = errors.New("duplicate link id")
)

// EventType 区分一次访问是普通点击还是扫二维码进来的。
type EventType string

const (
	EventClick EventType = "click"
	EventScan  EventType = "scan"
)

// AnalyticsEvent 是一条追加式的访问记录，写入后不再修改。
type AnalyticsEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// LinkAnalytics 是分析查询的聚合结果，History 按时间倒序（最新在前）。
type LinkAnalytics struct {
	LongURL     string           `json:"longUrl"`
	TotalClicks int64            `json:"totalClicks"`
	TotalScans  int64            `json:"totalScans"`
	CreatedAt   time.Time        `json:"createdAt"`
	History     []AnalyticsEvent `json:"history"`
}

// Store 是持久层契约。三张逻辑表：urls、analytics、counters。
//
// 设计原因：
// - 领域层只关心这些原子操作，不关心引擎（Postgres / 嵌入式 SQLite / 内存）
// - NextID 必须是一次原子的读-改-写：并发调用者拿到的值互不重叠
// - IncrementTotal 必须用存储侧的原子自增，不允许应用层读-改-写
type Store interface {
	// SeedCounter 幂等地初始化计数器行；行已存在时是 no-op。
	SeedCounter(ctx context.Context, serverID string, start int64) error
	// NextID 原子地把计数器 +1 并返回自增前的值（首次调用返回种子值）。
	// 计数器行不存在返回 ErrCounterNotSeeded；分配值越过上界返回 ErrRangeExceeded。
	NextID(ctx context.Context, serverID string) (int64, error)

	// InsertLink 以原始 ID（不是混淆值）为主键写入映射；主键冲突返回 ErrDuplicateID。
	InsertLink(ctx context.Context, id int64, longURL string) error
	LongURL(ctx context.Context, id int64) (string, error)
	DeleteLink(ctx context.Context, id int64) error

	// IncrementTotal 原子自增 total_clicks 或 total_scans。
	IncrementTotal(ctx context.Context, id int64, typ EventType) error
	// InsertEvent 追加一条访问记录，时间戳由服务端指定。
	InsertEvent(ctx context.Context, id int64, typ EventType, at time.Time) error
	Analytics(ctx context.Context, id int64) (*LinkAnalytics, error)

	// ForEachID 遍历全部已存在的链接 ID（用于启动时预热布隆过滤器）。
	ForEachID(ctx context.Context, fn func(id int64)) error

	Ping(ctx context.Context) error
	Close()
}

// Cache 是旁路缓存契约：key 是短码，value 是长链接。
// 缓存不是权威数据，可以随时缺失/被驱逐；negative 表示命中了负缓存
// （明确知道这个短码不存在，用来挡穿透）。
type Cache interface {
	Get(ctx context.Context, code string) (url string, negative bool, err error)
	Set(ctx context.Context, code, url string) error
	SetNotFound(ctx context.Context, code string) error
	Delete(ctx context.Context, code string) error
}

// CodeFilter 是布隆过滤器契约：MightExist 返回 false 说明短码一定不存在。
// 只有 Warmed 为 true（启动时已从持久层灌过全量短码）之后它的否定答案才可信。
type CodeFilter interface {
	Add(code string)
	MightExist(code string) bool
	MarkWarmed()
	Warmed() bool
}

// Recorder 接收访问事件。实现必须是尽力而为的：
// 任何失败只记日志，绝不影响跳转本身（见 stats 包）。
type Recorder interface {
	Record(linkID int64, typ EventType, at time.Time)
}

// 创建成功后顺手写缓存的超时：写不进去就算了，不拖慢创建。
const cacheWriteTimeout = 50 * time.Millisecond

// Service 把序号分配、混淆、编码、缓存、统计串成完整的创建/解析/删除流程。
// cache、filter、recorder 都允许为 nil（测试或裁剪部署）。
type Service struct {
	store    Store
	cache    Cache
	filter   CodeFilter
	recorder Recorder
	obf      *Obfuscator
	serverID string
}

func NewService(store Store, cache Cache, filter CodeFilter, recorder Recorder, obf *Obfuscator, serverID string) *Service {
	return &Service{
		store:    store,
		cache:    cache,
		filter:   filter,
		recorder: recorder,
		obf:      obf,
		serverID: serverID,
	}
}

// Create 校验长链接，从序号器取 ID，混淆+编码成短码，落库后返回短码。
// 注意落库用的是原始 ID：混淆值只存在于对外的短码里，永远不当存储键。
func (s *Service) Create(ctx context.Context, longURL string) (string, error) {
	if err := ValidateURL(longURL); err != nil {
		return "", err
	}

	id, err := s.store.NextID(ctx, s.serverID)
	if err != nil {
		return "", err
	}

	x, err := s.obf.Obfuscate(id)
	if err != nil {
		// 序号器吐出了域外的 ID：上界配置越过了 Mod，属于配置缺陷。
		return "", fmt.Errorf("obfuscate id %d: %w", id, err)
	}
	code, err := EncodeBase62(x)
	if err != nil {
		return "", fmt.Errorf("encode id %d: %w", id, err)
	}

	if err := s.store.InsertLink(ctx, id, longURL); err != nil {
		return "", err
	}

	if s.filter != nil {
		s.filter.Add(code)
	}

	// 写缓存/覆盖负缓存：创建成功后立刻写入，避免此前命中负缓存导致短码暂时不可用。
	if s.cache != nil {
		cacheCtx, cancel := context.WithTimeout(ctx, cacheWriteTimeout)
		defer cancel()
		if err := s.cache.Set(cacheCtx, code, longURL); err != nil {
			slog.Warn("cache set after create failed", "code", code, "err", err)
		}
	}

	return code, nil
}

// Resolve 把短码解析回长链接：解码 -> 查缓存 -> 查持久层 -> 异步回填缓存，
// 成功后把访问事件交给 Recorder。
//
// 缓存后端出错按未命中处理（缓存只是优化）；持久层出错包成 ErrUnavailable 上抛。
func (s *Service) Resolve(ctx context.Context, code string, typ EventType) (string, error) {
	id, err := s.decode(code)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		url, negative, cerr := s.cache.Get(ctx, code)
		switch {
		case cerr != nil:
			slog.Warn("cache get failed, falling back to store", "code", code, "err", cerr)
		case negative:
			return "", ErrNotFound
		case url != "":
			// 映射写入后不可变，缓存命中即权威，无陈旧性问题。
			s.record(id, typ)
			return url, nil
		}
	}

	// 布隆过滤器说“一定不存在”时直接短路，省掉一次必然落空的持久层查询。
	// 未预热的过滤器不可信（老数据会被误判为不存在），直接跳过。
	if s.filter != nil && s.filter.Warmed() && !s.filter.MightExist(code) {
		if s.cache != nil {
			if cerr := s.cache.SetNotFound(ctx, code); cerr != nil {
				slog.Warn("negative cache set failed", "code", code, "err", cerr)
			}
		}
		return "", ErrNotFound
	}

	url, err := s.store.LongURL(ctx, id)
	if errors.Is(err, ErrNotFound) {
		if s.cache != nil {
			if cerr := s.cache.SetNotFound(ctx, code); cerr != nil {
				slog.Warn("negative cache set failed", "code", code, "err", cerr)
			}
		}
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// 异步回填缓存：失败只记日志，绝不影响本次跳转。
	if s.cache != nil {
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.Set(cacheCtx, code, url); err != nil {
				slog.Warn("cache set failed", "code", code, "err", err)
			}
		}()
	}

	s.record(id, typ)
	return url, nil
}

// Delete 删除持久层映射并驱逐缓存。
// 缓存驱逐失败必须上抛：残留的缓存条目会让已删除的短码在 TTL 内继续可用。
func (s *Service) Delete(ctx context.Context, code string) error {
	id, err := s.decode(code)
	if err != nil {
		return err
	}
	if err := s.store.DeleteLink(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, code); err != nil {
			return fmt.Errorf("evict cache for %s: %w", code, err)
		}
	}
	return nil
}

// Analytics 返回一条短链的聚合统计与访问历史（最新在前）。
func (s *Service) Analytics(ctx context.Context, code string) (*LinkAnalytics, error) {
	id, err := s.decode(code)
	if err != nil {
		return nil, err
	}
	return s.store.Analytics(ctx, id)
}

// WarmFilter 从持久层灌入全量短码，之后布隆过滤器的否定答案才可信。
func (s *Service) WarmFilter(ctx context.Context) error {
	if s.filter == nil {
		return nil
	}
	err := s.store.ForEachID(ctx, func(id int64) {
		x, err := s.obf.Obfuscate(id)
		if err != nil {
			return
		}
		code, err := EncodeBase62(x)
		if err != nil {
			return
		}
		s.filter.Add(code)
	})
	if err != nil {
		return fmt.Errorf("warm code filter: %w", err)
	}
	s.filter.MarkWarmed()
	return nil
}

// decode 把对外短码还原成存储 ID；任何一步失败都归为 ErrInvalidCode（客户端错误），
// 与“解出来了但查不到”的 ErrNotFound 严格区分。
func (s *Service) decode(code string) (int64, error) {
	x, err := DecodeBase62(code)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}
	id, err := s.obf.Deobfuscate(x)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}
	return id, nil
}

func (s *Service) record(id int64, typ EventType) {
	if s.recorder != nil {
		s.recorder.Record(id, typ, time.Now())
	}
}
