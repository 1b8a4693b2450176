package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/optionsvault/internal/options/application"
	"github.com/wyfcoding/optionsvault/internal/options/domain"
	"github.com/wyfcoding/optionsvault/internal/options/infrastructure/cache"
	"github.com/wyfcoding/optionsvault/internal/options/infrastructure/chain"
	"github.com/wyfcoding/optionsvault/internal/options/infrastructure/custody"
	"github.com/wyfcoding/optionsvault/internal/options/infrastructure/messaging"
	"github.com/wyfcoding/optionsvault/internal/options/infrastructure/persistence/mysql"
	grpcserver "github.com/wyfcoding/optionsvault/internal/options/interfaces/grpc"
	httpserver "github.com/wyfcoding/optionsvault/internal/options/interfaces/http"
	pkgcache "github.com/wyfcoding/optionsvault/pkg/cache"
	"github.com/wyfcoding/optionsvault/pkg/config"
	"github.com/wyfcoding/optionsvault/pkg/db"
	"github.com/wyfcoding/optionsvault/pkg/idgen"
	"github.com/wyfcoding/optionsvault/pkg/logger"
	"github.com/wyfcoding/optionsvault/pkg/metrics"
	"github.com/wyfcoding/optionsvault/pkg/middleware"
	"github.com/wyfcoding/optionsvault/pkg/mq"
	"github.com/wyfcoding/optionsvault/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

var configPath = flag.String("config", "configs/optionsvault.toml", "config file path")

func main() {
	flag.Parse()
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. 配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. 日志
	log, err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	})
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	log = log.With("service", cfg.ServiceName, "version", cfg.Version)

	// 3. 指标
	m := metrics.New(cfg.ServiceName)
	if err := m.Register(); err != nil {
		return err
	}

	// 4. 数据库
	d, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		return err
	}
	defer d.Close()

	models := append(mysql.Models(), custody.Models()...)
	models = append(models, &messaging.OutboxMessage{})
	if err := d.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 5. 结算资产与账本高度
	ledger := custody.NewLedger(d, idgen.Default(), log)
	if err := seedAssets(ctx, ledger, cfg.Assets, log); err != nil {
		return err
	}

	genesis, err := cfg.Ledger.GenesisTime()
	if err != nil {
		return err
	}
	clock, err := chain.NewBlockClock(genesis, time.Duration(cfg.Ledger.BlockInterval)*time.Second, cfg.Ledger.StartHeight)
	if err != nil {
		return err
	}

	// 6. Redis：价格缓存与限流，未配置时跳过
	var feeds domain.PriceFeedRepository = mysql.NewPriceFeedRepository(d)
	var limiter ratelimit.RateLimiter
	if cfg.Redis.Enabled() {
		rc, err := pkgcache.New(pkgcache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ConnTimeout:  cfg.Redis.ConnTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return err
		}
		defer rc.Close()

		feeds = cache.NewCachedPriceFeedRepository(feeds, rc, time.Duration(cfg.Redis.PriceTTL)*time.Second, d, log)
		if cfg.RateLimit.Enabled {
			limiter = ratelimit.NewRedisRateLimiter(rc.GetClient())
		}
	}

	// 7. 事件：写入 outbox，由 relay 投递到 Kafka；未配置 Kafka 时只写日志
	var sender messaging.Sender = logSender{log: log}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			return err
		}
		defer producer.Close()
		sender = producer
	}
	relay := messaging.NewRelay(d, sender, cfg.Kafka.TopicPrefix, 100, time.Second, log)

	// 8. 应用服务
	deps := application.Deps{
		Options:    mysql.NewOptionRepository(d),
		Positions:  mysql.NewPositionRepository(d),
		Feeds:      feeds,
		Whitelists: mysql.NewWhitelistRepository(d),
		Protocol:   mysql.NewProtocolRepository(d),
		Assets:     ledger,
		Height:     clock,
		Events:     messaging.NewOutboxPublisher(d, log),
		Metrics:    m,
		Executor:   application.NewExecutor(d),
	}
	appCfg := application.Config{
		Custody:         cfg.Contract.Principal,
		ReferenceSymbol: cfg.Contract.ReferenceSymbol,
		CriticalAssets:  cfg.Contract.CriticalAssets,
		CriticalSymbols: cfg.Contract.CriticalSymbols,
		DefaultFeeRate:  cfg.Contract.ProtocolFeeRate,
	}
	engine := application.NewOptionsService(deps, appCfg, log)
	gov := application.NewGovernanceService(deps, appCfg, log)

	state, err := gov.Deploy(ctx, cfg.Contract.Owner)
	if err != nil {
		return fmt.Errorf("failed to deploy contract: %w", err)
	}
	log.Info("contract ready", "owner", state.Owner, "next_option_id", state.NextOptionID, "fee_rate", state.ProtocolFeeRate)

	// 9. 接口层
	unary := []grpc.UnaryServerInterceptor{
		middleware.GRPCRecoveryInterceptor(),
		middleware.GRPCLoggingInterceptor(m),
	}
	if limiter != nil {
		unary = append(unary, middleware.GRPCRateLimitInterceptor(limiter, cfg.RateLimit))
	}
	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unary...),
		grpc.MaxConcurrentStreams(uint32(cfg.GRPC.MaxConcurrentStreams)),
	)
	grpcserver.NewServer(engine, gov, ledger).Register(grpcSrv)
	reflection.Register(grpcSrv)

	if cfg.Environment != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.GinRecoveryMiddleware(), middleware.GinLoggingMiddleware(m), middleware.GinCORSMiddleware())
	if limiter != nil {
		r.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimit))
	}
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	httpserver.NewHandler(engine, gov, ledger).RegisterRoutes(r.Group("/api/v1"))

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = m.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// 10. 启动
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		relay.Run(gctx)
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr())
		if err != nil {
			return err
		}
		log.Info("gRPC server starting", "addr", cfg.GRPC.Addr())
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		log.Info("HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown failed", "error", err)
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}

// seedAssets 登记配置中的结算资产；仅在资产尚无供应量时发放创世余额
func seedAssets(ctx context.Context, ledger *custody.Ledger, assets []config.AssetConfig, log *slog.Logger) error {
	for _, a := range assets {
		if err := ledger.Register(ctx, custody.Metadata{
			AssetID:  a.ID,
			Name:     a.Name,
			Symbol:   a.Symbol,
			Decimals: a.Decimals,
			URI:      a.URI,
		}); err != nil {
			return err
		}
		meta, err := ledger.Metadata(ctx, a.ID)
		if err != nil {
			return err
		}
		if meta.TotalSupply > 0 {
			continue
		}
		for _, b := range a.Balances {
			if err := ledger.Mint(ctx, a.ID, b.Principal, b.Amount); err != nil {
				return err
			}
		}
		log.Info("genesis balances minted", "asset", a.ID, "holders", len(a.Balances))
	}
	return nil
}

// logSender 未配置 Kafka 时代替生产者
type logSender struct {
	log *slog.Logger
}

func (s logSender) SendMessage(ctx context.Context, topic, key string, value any) error {
	s.log.InfoContext(ctx, "event", "topic", topic, "key", key, "payload", value)
	return nil
}
