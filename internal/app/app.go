package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"trafficwatch/internal/anomaly"
	"trafficwatch/internal/app/server"
	"trafficwatch/internal/auth"
	"trafficwatch/internal/blocklist"
	"trafficwatch/internal/config"
	"trafficwatch/internal/database"
	"trafficwatch/internal/geo"
	"trafficwatch/internal/jobs/runtime"
	"trafficwatch/internal/middleware"
	"trafficwatch/internal/ratelimit"
	"trafficwatch/internal/support"
	"trafficwatch/internal/traffic"
)

const defaultBackendPort = 8082

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	portFlag := flag.Int("port", defaultBackendPort, "Port for the HTTP server")
	productionFlag := flag.Bool("production", false, "Run in production mode")
	flag.Parse()

	config.SetProductionMode(*productionFlag)
	log.SetLevel(resolveLogLevel(os.Getenv("LOG_LEVEL"), *productionFlag))

	port := resolvePort("BACKEND_PORT", "PORT", *portFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ReadSettings()
	cfg := config.GetConfig()

	redisClient, err := connectRedis(cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() {
			if err := support.CloseRedisClient(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}()
		config.EnableRedisSynchronization(ctx, redisClient)
		defer config.DisableRedisSynchronization()
		cfg = config.GetConfig()
	}

	if _, err := database.SetupDB(); err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer func() {
		if err := database.CloseDB(); err != nil {
			log.Warn("error closing database", "error", err)
		}
	}()

	var sharedRedis redis.UniversalClient
	if redisClient != nil {
		sharedRedis = redisClient
	}

	resolver, geoCloser, err := geo.NewFromConfig(ctx, cfg.Geolocation, sharedRedis)
	if err != nil {
		return fmt.Errorf("failed to set up geolocation: %w", err)
	}
	defer closeQuietly("geolocation provider", geoCloser)

	store, err := ratelimit.NewStore(cfg.RateLimit.Backend, sharedRedis)
	if err != nil {
		return fmt.Errorf("failed to set up rate limit store: %w", err)
	}
	policy, err := ratelimit.PolicyFromConfig(cfg.RateLimit.Groups)
	if err != nil {
		return fmt.Errorf("invalid rate limit settings: %w", err)
	}
	limiter := ratelimit.NewLimiter(store, policy)

	interceptor := middleware.NewInterceptor(
		blocklist.NewChecker(),
		resolver,
		traffic.NewLogger(),
		middleware.InterceptorOptions{
			IgnoreForwardedHeader: cfg.Interceptor.IgnoreForwardedHeader,
			LogTimeout:            cfg.LoggingTimeout(),
		},
	)

	handler := server.NewRouter(server.Dependencies{
		Interceptor:           interceptor,
		Limiter:               limiter,
		Resolver:              resolver,
		Operator:              auth.OperatorFromEnv(),
		Redis:                 sharedRedis,
		IgnoreForwardedHeader: cfg.Interceptor.IgnoreForwardedHeader,
		TokenTTL:              time.Duration(support.GetEnvInt("JWT_TTL_MINUTES", 0)) * time.Minute,
	})

	group, groupCtx := errgroup.WithContext(ctx)

	if sharedRedis != nil {
		group.Go(func() error {
			runtime.StartInstanceHeartbeat(groupCtx, sharedRedis, runtime.InstanceHeartbeatKeyPrefix, runtime.DefaultHeartbeatInterval, runtime.DefaultHeartbeatTTL)
			return nil
		})
	}

	group.Go(func() error {
		runtime.StartAnomalyScanRoutine(groupCtx, sharedRedis, scanWithCurrentSettings)
		return nil
	})

	if sweepers := memorySweepers(resolver, store); len(sweepers) > 0 {
		group.Go(func() error {
			runtime.StartMemorySweeper(groupCtx, runtime.DefaultSweepInterval, sweepers...)
			return nil
		})
	}

	if geolite, ok := geoCloser.(*geo.GeoLiteProvider); ok {
		if licenseKey := support.GetEnv("MAXMIND_LICENSE_KEY", ""); licenseKey != "" {
			group.Go(func() error {
				runtime.StartGeoLiteUpdateRoutine(groupCtx, cfg.Geolocation.GeoLiteUpdateInterval(), func(ctx context.Context) error {
					return geolite.Refresh(ctx, licenseKey)
				})
				return nil
			})
		}
	}

	group.Go(func() error {
		return server.OpenRoutes(groupCtx, port, handler)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("trafficwatch stopped")
	return nil
}

// scanWithCurrentSettings reads the settings on every run so saved changes
// apply from the next scan.
func scanWithCurrentSettings(ctx context.Context) (int64, error) {
	scanner := anomaly.NewScanner(anomaly.SettingsFromConfig(config.GetConfig().Anomaly))
	return scanner.Scan(ctx)
}

// connectRedis returns nil when no configured backend needs Redis.
func connectRedis(cfg config.Config) (*redis.Client, error) {
	needed := cfg.Geolocation.Cache != "memory" || cfg.RateLimit.Backend != "memory"
	if !needed && os.Getenv("REDIS_URL") == "" {
		log.Info("Running without redis: memory backends selected")
		return nil, nil
	}

	client, err := support.GetRedisClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get redis client: %w", err)
	}
	return client, nil
}

func memorySweepers(resolver *geo.Resolver, store ratelimit.Store) []runtime.Sweeper {
	var sweepers []runtime.Sweeper
	if cache, ok := resolver.Cache().(*geo.MemoryCache); ok {
		sweepers = append(sweepers, cache.Sweep)
	}
	if memory, ok := store.(*ratelimit.MemoryStore); ok {
		sweepers = append(sweepers, memory.Prune)
	}
	return sweepers
}

func closeQuietly(name string, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		log.Warn("error closing "+name, "error", err)
	}
}

func resolveLogLevel(raw string, production bool) log.Level {
	if raw != "" {
		if level, err := log.ParseLevel(strings.ToLower(raw)); err == nil {
			return level
		}
		log.Warn("invalid log level", "value", raw)
	}
	if production {
		return log.InfoLevel
	}
	return log.DebugLevel
}

func resolvePort(primaryEnv, legacyEnv string, fallback int) int {
	if port := readPort(primaryEnv); port != 0 {
		return port
	}
	if port := readPort(legacyEnv); port != 0 {
		return port
	}
	return fallback
}

func readPort(envKey string) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return 0
	}
	return port
}
