package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// Pub/sub channels for row-change notifications. One channel per receiver
// so a participant only ever subscribes to its own traffic.

func QueueChannel(userID string) string {
	return fmt.Sprintf("queue:%s", userID)
}

func SessionChannel(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func SignalChannel(userID string) string {
	return fmt.Sprintf("signals:%s", userID)
}

// Presence keys.

func LastActiveKey(userID string) string {
	return fmt.Sprintf("presence:last_active:%s", userID)
}

func InCallKey(userID string) string {
	return fmt.Sprintf("presence:in_call:%s", userID)
}
