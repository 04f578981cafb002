package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/promptgate/promptgate/pkg/cache"
	"github.com/promptgate/promptgate/pkg/config"
	"github.com/promptgate/promptgate/pkg/gateway"
	"github.com/promptgate/promptgate/pkg/logging"
	"github.com/promptgate/promptgate/pkg/memory"
	"github.com/promptgate/promptgate/pkg/ratelimit"
	"github.com/promptgate/promptgate/pkg/upstream"
)

func main() {
	cfgStore, err := config.LoadAndWatch("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg := cfgStore.Get()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: os.Stderr,
	})

	gw, redisClient, err := buildGateway(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build gateway")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Request-path tunables follow config reloads. Backend and component
	// settings (Redis, ceilings, backoff, memory threshold) are fixed at
	// startup.
	cfgStore.Subscribe(func(c *config.Config) {
		gw.SetTunables(c.Cache.TTL, gateway.Limits{
			MaxMessageChars: c.Limits.MaxMessageChars,
			MaxContextChars: c.Limits.MaxContextChars,
			MaxPromptTokens: c.Limits.MaxPromptTokens,
		})
		logger.Info().
			Dur("cache_ttl", c.Cache.TTL).
			Int("max_message_chars", c.Limits.MaxMessageChars).
			Msg("Applied reloaded request tunables")
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/v1/chat", chatHandler(gw, logging.NewLogger("http")))

	server := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", cfg.Server.Port).Msg("Gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
	}
}

// buildGateway constructs the gateway and its components from config.
// Redis-backed cache and rate-limit backends are used when Redis is
// enabled, in-memory ones otherwise.
func buildGateway(cfg *config.Config) (*gateway.Gateway, *redis.Client, error) {
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
	}

	var store cache.Store
	var governor ratelimit.Governor
	var memGovernor *ratelimit.MemoryGovernor
	if redisClient != nil {
		store = cache.NewRedisStore(redisClient)
		governor = ratelimit.NewRedisGovernor(redisClient,
			cfg.RateLimit.Ceiling, cfg.RateLimit.Window, logging.NewLogger("ratelimit"))
	} else {
		store = cache.NewMemoryStore()
		memGovernor = ratelimit.NewMemoryGovernor(
			cfg.RateLimit.Ceiling, cfg.RateLimit.Window, logging.NewLogger("ratelimit"))
		governor = memGovernor
	}

	provider, err := upstream.NewOpenAI(upstream.OpenAIConfig{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
		Model:   cfg.Upstream.Model,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create provider: %w", err)
	}
	breaker := upstream.NewBreaker(provider, logging.NewLogger("breaker"))

	retrier := upstream.NewRetrier(upstream.RetryConfig{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialBackoff:    cfg.Retry.InitialBackoff,
		MaxBackoff:        cfg.Retry.MaxBackoff,
		BackoffMultiplier: 2.0,
		AttemptTimeout:    cfg.Upstream.AttemptTimeout,
	}, logging.NewLogger("retry"))

	monitor := memory.NewMonitor(cfg.Memory.ThresholdBytes, cfg.Memory.MinInterval,
		logging.NewLogger("memory"))
	monitor.Register("cache", store.PurgeExpired)
	if memGovernor != nil {
		monitor.Register("ratelimit", memGovernor.PruneStale)
	}

	gw, err := gateway.New(governor, store, breaker, retrier, monitor, gateway.Config{
		CacheTTL: cfg.Cache.TTL,
		Model:    cfg.Upstream.Model,
		Limits: gateway.Limits{
			MaxMessageChars: cfg.Limits.MaxMessageChars,
			MaxContextChars: cfg.Limits.MaxContextChars,
			MaxPromptTokens: cfg.Limits.MaxPromptTokens,
		},
	}, logging.NewLogger("gateway"))
	if err != nil {
		return nil, nil, err
	}

	return gw, redisClient, nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

type chatRequest struct {
	Message     string  `json:"message"`
	Context     string  `json:"context,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Text             string `json:"text"`
	Model            string `json:"model"`
	Cached           bool   `json:"cached"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// chatHandler maps gateway outcomes onto HTTP status codes: 200 success,
// 400 invalid, 429 rate limited, 504 upstream timeout, 502 other
// upstream failures.
func chatHandler(gw *gateway.Gateway, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		result, err := gw.Handle(r.Context(), gateway.Request{
			Identity:    callerIdentity(r),
			Message:     req.Message,
			Context:     req.Context,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			var ve *gateway.ValidationError
			var rle *gateway.RateLimitError
			switch {
			case errors.As(err, &ve):
				writeError(w, http.StatusBadRequest, ve.Error())
			case errors.As(err, &rle):
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rle.RetryAfter.Seconds())+1))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			case errors.Is(err, context.DeadlineExceeded):
				logger.Error().Err(err).Msg("Chat request timed out")
				writeError(w, http.StatusGatewayTimeout, "upstream completion timed out")
			default:
				// Internal detail stays in the logs.
				logger.Error().Err(err).Msg("Chat request failed")
				writeError(w, http.StatusBadGateway, "upstream completion failed")
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if result.Cached {
			w.Header().Set("X-Cache", "HIT")
		} else {
			w.Header().Set("X-Cache", "MISS")
		}
		json.NewEncoder(w).Encode(chatResponse{
			Text:             result.Text,
			Model:            result.Model,
			Cached:           result.Cached,
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
		})
	}
}

// callerIdentity derives the rate-limit key: the API key when present,
// the remote host otherwise.
func callerIdentity(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}
