/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Seednode/showdown/games/battle"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// redisArchiver pushes finished games onto a redis list for whatever wants
// to keep them.
type redisArchiver struct {
	client *redis.Client
	queue  string
}

// newArchiver returns nil when no redis address is configured.
func newArchiver(ctx context.Context, cfg *Config) (*redisArchiver, error) {
	if cfg.redisAddr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.redisAddr,
		DB:   cfg.redisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.redisAddr, err)
	}

	cfg.logger.WithFields(logrus.Fields{
		"addr":  cfg.redisAddr,
		"queue": cfg.redisQueue,
	}).Info("archiving finished games to redis")

	return &redisArchiver{
		client: client,
		queue:  cfg.redisQueue,
	}, nil
}

func encodeRecord(rec battle.Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal game record: %w", err)
	}

	return data, nil
}

func (a *redisArchiver) Archive(ctx context.Context, rec battle.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	if err := a.client.RPush(ctx, a.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to redis list %q: %w", a.queue, err)
	}

	return nil
}

func (a *redisArchiver) Close() error {
	return a.client.Close()
}
