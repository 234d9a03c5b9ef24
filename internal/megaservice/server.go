// Package megaservice assembles the ChatQnA megaservice: the orchestrator
// over the configured service graph, the conversation store, the answer
// cache and the HTTP server.
package megaservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/megaservice/internal/megaservice/biz"
	"github.com/kart-io/megaservice/internal/megaservice/handler"
	"github.com/kart-io/megaservice/internal/megaservice/metrics"
	"github.com/kart-io/megaservice/internal/megaservice/router"
	"github.com/kart-io/megaservice/internal/megaservice/store"
	"github.com/kart-io/megaservice/internal/pkg/orchestrator"
	"github.com/kart-io/megaservice/pkg/cache"
	"github.com/kart-io/megaservice/pkg/component/mongodb"
	"github.com/kart-io/megaservice/pkg/component/redis"
	"github.com/kart-io/megaservice/pkg/infra/app"
	"github.com/kart-io/megaservice/pkg/infra/config"
	"github.com/kart-io/megaservice/pkg/infra/discovery/etcd"
	"github.com/kart-io/megaservice/pkg/infra/middleware"
	"github.com/kart-io/megaservice/pkg/infra/pool"
	"github.com/kart-io/megaservice/pkg/infra/server"
	httpserver "github.com/kart-io/megaservice/pkg/infra/server/http"
	"github.com/kart-io/megaservice/pkg/infra/tracing"
	cacheopts "github.com/kart-io/megaservice/pkg/options/cache"
	etcdopts "github.com/kart-io/megaservice/pkg/options/etcd"
	logopts "github.com/kart-io/megaservice/pkg/options/logger"
	megaopts "github.com/kart-io/megaservice/pkg/options/megaservice"
	mongoopts "github.com/kart-io/megaservice/pkg/options/mongodb"
	poolopts "github.com/kart-io/megaservice/pkg/options/pool"
	httpopts "github.com/kart-io/megaservice/pkg/options/server/http"
	tracingopts "github.com/kart-io/megaservice/pkg/options/tracing"
	"github.com/kart-io/megaservice/pkg/utils/httpclient"
	"github.com/kart-io/megaservice/pkg/validator"
)

// Name is the name of the application.
const Name = "megaservice"

// healthTimeout 单次就绪检查超时。
const healthTimeout = 3 * time.Second

// Config contains application-related configurations.
type Config struct {
	HTTPOptions        *httpopts.Options
	LogOptions         *logopts.Options
	MegaserviceOptions *megaopts.Options
	MongoOptions       *mongoopts.Options
	CacheOptions       *cacheopts.Options
	TracingOptions     *tracingopts.Options
	EtcdOptions        *etcdopts.Options
	PoolOptions        *poolopts.Options

	// Watcher 可选，非空时提示模板随配置文件热更新
	Watcher *config.Watcher
}

// Server represents the megaservice server.
type Server struct {
	mgr     *server.Manager
	http    *httpserver.Server
	closers []func(context.Context) error
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (s *Server, err error) {
	s = &Server{}
	defer func() {
		if err != nil {
			_ = s.close(context.WithoutCancel(ctx))
		}
	}()

	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting megaservice...")

	// 2. 初始化链路追踪
	tp, err := tracing.NewProvider(ctx, cfg.TracingOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.closers = append(s.closers, tp.Shutdown)

	// 3. 请求校验
	validator.InstallGinBinding(validator.Global())

	// 4. 构建服务图与编排器
	m := metrics.New()
	orch, err := newOrchestrator(cfg.MegaserviceOptions, m)
	if err != nil {
		return nil, err
	}
	health := middleware.NewHealthManager(healthTimeout)
	health.RegisterChecker("template", func(context.Context) error {
		if orch.Template().Len() == 0 {
			return errors.New("service graph is empty")
		}
		return nil
	})

	// 5. 初始化回答缓存（Redis 不可用时降级为不缓存）
	answerCache, err := s.newAnswerCache(ctx, cfg.CacheOptions, health)
	if err != nil {
		return nil, err
	}
	chatqna := biz.NewChatQnAService(orch, answerCache, m)

	// 6. 初始化会话存储与后台池
	templates := newChatTemplates(cfg.MegaserviceOptions.ChatTemplates)
	if cfg.Watcher != nil {
		cfg.Watcher.Subscribe(chatTemplatesKey, config.ReloadHandler[map[string]string](templates, chatTemplatesKey))
		cfg.Watcher.Start()
	}

	var (
		convHandler *handler.ConversationHandler
		circHandler *handler.CircularHandler
	)
	if cfg.MongoOptions.Enabled {
		mc, err := mongodb.New(ctx, cfg.MongoOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mongodb: %w", err)
		}
		s.closers = append(s.closers, mc.Close)
		health.RegisterChecker(mc.Name(), mc.Ping)

		bg, err := pool.NewPool("conversation", cfg.PoolOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to create worker pool: %w", err)
		}
		s.closers = append(s.closers, func(context.Context) error { return bg.Release() })

		conv := biz.NewConversationService(store.NewMongoStore(mc), chatqna,
			biz.WithTemplates(templates.Lookup),
			biz.WithSubmitter(bg),
			biz.WithMetrics(m),
		)
		convHandler = handler.NewConversationHandler(conv, m)
		circHandler = handler.NewCircularHandler(biz.NewCircularService(store.NewMongoCircularStore(mc)))
		logger.Infow("Conversation store initialized", "uri.host", cfg.MongoOptions.Host)
	} else {
		logger.Info("Conversation store is disabled")
	}

	// 7. 初始化 HTTP 服务器并注册路由
	s.http = httpserver.NewServer(cfg.HTTPOptions,
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Tracing(middleware.WithTracingSkipPaths("/healthz", "/readyz", "/metrics")),
		middleware.Logger("/healthz", "/readyz", "/metrics"),
		middleware.CORS(),
	)
	router.Register(s.http.Engine(), router.Handlers{
		ChatQnA:      handler.NewChatQnAHandler(chatqna, m),
		Conversation: convHandler,
		Circular:     circHandler,
		Health:       health,
		Metrics:      m,
	})

	// 8. 组装生命周期
	s.mgr = server.NewManager(
		server.WithShutdownTimeout(cfg.HTTPOptions.ShutdownTimeout),
		server.WithServer(s.http),
	)
	if cfg.EtcdOptions.Enabled {
		s.mgr.Add(etcd.NewRegistrar(Name, cfg.EtcdOptions))
	}

	logger.Infow("Megaservice is ready",
		"topology", cfg.MegaserviceOptions.Topology,
		"addr", cfg.HTTPOptions.Addr,
		"cache.enabled", answerCache != nil,
		"conversation.enabled", convHandler != nil,
	)
	return s, nil
}

func newOrchestrator(opts *megaopts.Options, m *metrics.Metrics) (*orchestrator.Orchestrator, error) {
	g, err := BuildGraph(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build service graph: %w", err)
	}

	invoker := orchestrator.NewHTTPInvoker(httpclient.NewClient(opts.InvokeTimeout, opts.InvokeRetries))
	orch, err := orchestrator.New(g, invoker,
		orchestrator.WithAdapters(orchestrator.NewRAGAdapters(opts.Model)),
		orchestrator.WithParallelism(opts.Parallelism),
		orchestrator.WithObserver(m),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	for _, n := range g.Nodes() {
		logger.Infow("Service node registered", "node", n.ID(), "kind", string(n.Kind()), "url", n.URL())
	}
	return orch, nil
}

func (s *Server) newAnswerCache(ctx context.Context, opts *cacheopts.Options, health *middleware.HealthManager) (*biz.AnswerCache, error) {
	if !opts.Enabled {
		logger.Info("Answer cache is disabled")
		return nil, nil
	}

	rc, err := redis.New(ctx, opts.Redis)
	if err != nil {
		logger.Warnw("failed to connect to redis, answer cache will be disabled", "error", err.Error())
		return nil, nil
	}
	s.closers = append(s.closers, func(context.Context) error { return rc.Close() })
	health.RegisterChecker(rc.Name(), rc.Ping)

	logger.Infow("Answer cache initialized", "addr", opts.Redis.Addr(), "ttl", opts.TTL.String())
	return biz.NewAnswerCache(cache.NewRedisCache(rc.Client(), opts.KeyPrefix), opts.TTL), nil
}

// Addr 返回 HTTP 监听地址，启动前为配置值。
func (s *Server) Addr() string {
	return s.http.Addr()
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	runErr := s.mgr.Run(ctx)
	closeErr := s.close(context.WithoutCancel(ctx))
	return errors.Join(runErr, closeErr)
}

// close 逆序释放资源。
func (s *Server) close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
