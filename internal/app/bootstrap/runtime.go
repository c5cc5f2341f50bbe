package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/Avaneeshakrishna/cliniccall-AI/internal/config"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/conversation"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildSessionStore keeps conversation state in DynamoDB when SESSION_TABLE
// is set, in Redis when a client is available and in process memory otherwise.
func BuildSessionStore(redisClient *redis.Client, awsCfg *aws.Config, cfg *appconfig.Config, logger *logging.Logger) conversation.Store {
	if logger == nil {
		logger = logging.Default()
	}
	var ttl time.Duration
	if cfg != nil {
		ttl = cfg.SessionTTL
		if table := strings.TrimSpace(cfg.SessionTable); table != "" && awsCfg != nil {
			logger.Info("conversation sessions kept in dynamodb", "table", table, "ttl", ttl)
			return conversation.NewDynamoStore(dynamodb.NewFromConfig(*awsCfg), table, ttl)
		}
	}
	if redisClient == nil {
		logger.Info("conversation sessions kept in memory")
		return conversation.NewMemoryStore()
	}
	logger.Info("conversation sessions kept in redis", "ttl", ttl)
	return conversation.NewRedisStore(redisClient, ttl)
}

// BuildRepository opens the Postgres-backed scheduling repository, or the
// in-memory one when DATABASE_URL is unset. The returned close func is never nil.
func BuildRepository(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (scheduling.Repository, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	url := strings.TrimSpace(cfg.DatabaseURL)
	if url == "" {
		logger.Warn("DATABASE_URL not set; using in-memory scheduling repository")
		return scheduling.NewMemoryRepository(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("connected to postgres")
	return scheduling.NewPostgresRepository(pool), pool.Close, nil
}

// BuildTranscriptLog opens the conversation history log. It returns nil, and
// history stays disabled, when no database is configured.
func BuildTranscriptLog(cfg *appconfig.Config, logger *logging.Logger) (*conversation.TranscriptLog, func(), error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, func() {}, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open transcript db: %w", err)
	}
	logger.Info("conversation history enabled")
	return conversation.NewTranscriptLog(db), func() { _ = db.Close() }, nil
}
