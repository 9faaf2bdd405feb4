package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"snip.local/internal/app/shortener"
	slcache "snip.local/internal/app/shortener/cache"
	"snip.local/internal/app/shortener/httpapi"
	"snip.local/internal/app/shortener/repo"
	"snip.local/internal/app/shortener/repo/memory"
	"snip.local/internal/app/shortener/repo/sqlite"
	"snip.local/internal/app/shortener/stats"
	"snip.local/internal/platform/auth"
	platformcache "snip.local/internal/platform/cache"
	"snip.local/internal/platform/config"
	"snip.local/internal/platform/db"
	"snip.local/internal/platform/httpmiddleware"
	"snip.local/internal/platform/httpserver"
	"snip.local/internal/platform/metrics"
	"snip.local/internal/platform/migrate"
	"snip.local/internal/platform/ratelimit"
	"snip.local/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	var h slog.Handler
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	} else {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	}
	slog.SetDefault(slog.New(h))

	// 混淆器：启动时校验 PRIME*INVERSE ≡ 1 (mod 62^6)，配错直接拒绝启动
	obf, err := shortener.NewObfuscator()
	if err != nil {
		log.Fatal(err)
	}

	// 存储后端
	var store shortener.Store
	switch cfg.StoreBackend {
	case "postgres":
		dbCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		dbPool, errDB := db.New(dbCtx, cfg.DBDSN)
		if errDB != nil {
			log.Fatal(errDB)
		}
		res, errMig := migrate.Up(context.Background(), dbPool, migrate.Options{})
		if errMig != nil {
			log.Fatal(errMig)
		}
		slog.Info("migrations applied", "applied", len(res.AppliedFiles), "skipped", len(res.SkippedFiles))
		store = repo.NewPostgresStore(dbPool, cfg.CounterEnd)
	case "sqlite":
		st, errSt := sqlite.New(cfg.SQLitePath, cfg.CounterEnd)
		if errSt != nil {
			log.Fatal(errSt)
		}
		store = st
	case "memory":
		slog.Warn("using in-memory store, all data is lost on restart")
		store = memory.New(cfg.CounterEnd)
	default:
		log.Fatalf("unknown store backend %q", cfg.StoreBackend)
	}
	defer store.Close()
	slog.Info("store ready", "backend", cfg.StoreBackend)

	// 序号器：幂等初始化本实例的计数器行
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelSeed()
	if err := store.SeedCounter(seedCtx, cfg.ServerID, cfg.CounterStart); err != nil {
		log.Fatal(err)
	}

	// Redis：缓存和限流共用一个客户端
	var limiter *ratelimit.Limiter
	var svcCache shortener.Cache
	if cfg.RedisEnabled {
		redisClient, errRedis := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if errRedis != nil {
			log.Fatal(errRedis)
		}
		defer redisClient.Close()

		if cfg.RateLimitEnabled {
			limiter = ratelimit.NewLimiter(redisClient)
		} else {
			slog.Warn("RateLimit disabled by config", "RATELIMIT_ENABLED", false)
		}

		localCache, errLocal := slcache.NewLocalCache(100000, 1<<24) // 10万条目，16MB
		if errLocal != nil {
			log.Fatal(errLocal)
		}
		linkCache := slcache.NewLinkCache(redisClient, localCache, cfg.CacheTTL)
		defer linkCache.Close()
		svcCache = linkCache
	} else {
		slog.Warn("Redis disabled by config, running without cache and rate limit")
	}

	//创建布隆过滤器 预期 100 万短码，1% 误判率
	bloomFilter := slcache.NewBloomFilter(1_000_000, 0.01)

	//统计：根据配置选择同步落库 / Channel / Kafka
	var recorder shortener.Recorder
	var collector stats.Collector
	var kafkaConsumer *stats.KafkaConsumer
	var channelConsumer *stats.Consumer
	switch {
	case cfg.TrackingMode == "sync":
		slog.Info("同步记录访问统计（每次跳转当场落库）")
		recorder = stats.NewStoreRecorder(store)
	case cfg.KafkaEnabled:
		slog.Info("使用 Kafka 收集访问统计", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		kafkaCollector := stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		collector = kafkaCollector
		recorder = kafkaCollector
		kafkaConsumer = stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, store)
	default:
		slog.Info("使用 Channel 收集访问统计")
		channelCollector := stats.NewChannelCollector(10000)
		collector = channelCollector
		recorder = channelCollector
		channelConsumer = stats.NewConsumer(store, channelCollector)
	}

	svc := shortener.NewService(store, svcCache, bloomFilter, recorder, obf, cfg.ServerID)

	// 预热布隆过滤器：预热完成前它的否定答案不可信，失败只降级不拦启动
	warmCtx, cancelWarm := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelWarm()
	if err := svc.WarmFilter(warmCtx); err != nil {
		slog.Error("bloom filter warm-up failed, filter stays untrusted", "err", err)
	} else {
		slog.Info("bloom filter warmed", "codes", bloomFilter.Count())
	}

	// JWT
	ts, jwtErr := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if jwtErr != nil {
		log.Fatal(jwtErr)
	}

	metrics.Init()

	var shutdown func(context.Context) error
	if cfg.TracingEnabled {
		shutdown = trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.ServiceName)
		if shutdown == nil {
			slog.Error("Trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error(err.Error())
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	r := chi.NewRouter()
	r.Use(httpmiddleware.Recover, httpmiddleware.RequestID, httpmiddleware.AccessLog, httpmiddleware.Metrics, httpmiddleware.TraceName)

	r.Route("/api/v1", func(api chi.Router) {
		httpapi.RegisterAPIRoutes(api, svc, ts, limiter, cfg.BaseURL)
	})
	httpapi.RegisterPublicRoutes(r, svc, limiter)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg.Addr, cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	// 存储连接状态检测
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("store ping err"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("store ready"))
	})

	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})

	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	adminSrv := httpserver.New(cfg.AdminAddr, cfg, adminMux) // 推荐：127.0.0.1:6060

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errch := make(chan error, 2)

	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(publicSrv, cfg.ShutdownTimeout, stopCtx)
	}()
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(adminSrv, cfg.ShutdownTimeout, stopCtx)
	}()

	// 启动 Kafka consumer（如果启用）
	if kafkaConsumer != nil {
		go kafkaConsumer.Run(stopCtx)
		defer kafkaConsumer.Close()
	}
	// 启动 Channel consumer（如果启用）
	if channelConsumer != nil {
		go channelConsumer.Run(stopCtx)
	}
	if collector != nil {
		defer collector.Close()
	}

	err = <-errch
	if err != nil {
		stop()
		select {
		case <-errch:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
		log.Fatal(err)
	}

	stop()
	<-errch
}
