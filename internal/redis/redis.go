// Package redis owns the process-wide Redis client used for the media
// lookup cache. Playback works without it; Init failures only cost cache
// hits.
package redis

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

const (
	pingAttempts   = 5
	pingTimeout    = 3 * time.Second
	initialBackoff = 200 * time.Millisecond
)

var (
	client *redislib.Client
	once   sync.Once
)

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (cfg Config) Addr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// Init connects once for the process lifetime. Later calls return the same
// client regardless of the config passed.
func Init(cfg Config) (*redislib.Client, error) {
	var initErr error

	once.Do(func() {
		c := redislib.NewClient(&redislib.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		})

		if err := waitForPing(c); err != nil {
			_ = c.Close()
			initErr = fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr(), err)
			return
		}

		client = c
		log.Printf("Redis connection established")
	})

	if client == nil && initErr == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	return client, initErr
}

func waitForPing(c *redislib.Client) error {
	backoff := initialBackoff

	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		err = c.Ping(ctx).Err()
		cancel()

		if err == nil {
			return nil
		}
		if attempt < pingAttempts {
			log.Printf("Redis ping attempt %d/%d failed: %v", attempt, pingAttempts, err)
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return err
}

// Client returns the shared client, or nil when Init never succeeded.
// Callers treat nil as cache-off.
func Client() *redislib.Client {
	return client
}

func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}
