// internal/database/redis.go
package database

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"

	"presence-service/internal/config"
)

var redisClient *redis.Client

// InitRedis initializes the Redis connection backing the realtime presence
// channels. REDIS_URL takes precedence over the config fields.
func InitRedis(cfg *config.Config) *redis.Client {
	var opt *redis.Options

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Printf("❌ Failed to parse REDIS_URL: %v", err)
			return nil
		}
		opt = parsed
	} else {
		opt = &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
	}

	redisClient = redis.NewClient(opt)

	// Test connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("❌ Failed to connect to Redis: %v", err)
		return nil
	}

	log.Println("✅ Redis connected successfully")
	return redisClient
}

// GetRedis returns the Redis client
func GetRedis() *redis.Client {
	return redisClient
}
