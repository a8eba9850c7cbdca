// Package cache implements the ephemeral session store on Redis: pending
// OTP codes, the single active refresh token per user, and token/user
// blacklist markers. Every entry carries a TTL so expiry is handled by
// Redis, not by application timers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cliniq-dev/cliniq/shared/config"
	"github.com/cliniq-dev/cliniq/shared/domain"
	internal_errors "github.com/cliniq-dev/cliniq/shared/errors"
)

type Cache struct {
	client *redis.Client
}

func New(cfg *config.Redis) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.Db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// NewFromClient wraps an existing client. Used by tests with miniredis.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Cleanup() error {
	return c.client.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func otpKey(userId domain.UserId) string       { return fmt.Sprintf("otp:%d", userId) }
func refreshKey(userId domain.UserId) string   { return fmt.Sprintf("refresh:%d", userId) }
func tokenBlKey(token string) string           { return "blacklist:" + token }
func userBlKey(userId domain.UserId) string    { return fmt.Sprintf("blacklist:user:%d", userId) }
func profileKey(userId domain.UserId) string   { return fmt.Sprintf("profile:%d", userId) }

// --- OTP ---

// SaveOTP stores the pending code for a user, overwriting any prior one.
func (c *Cache) SaveOTP(ctx context.Context, userId domain.UserId, code string, ttl time.Duration) error {
	if err := c.client.Set(ctx, otpKey(userId), code, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save otp: %w", err)
	}
	return nil
}

func (c *Cache) OTP(ctx context.Context, userId domain.UserId) (string, error) {
	code, err := c.client.Get(ctx, otpKey(userId)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", internal_errors.NotFound("No pending code")
		}
		return "", fmt.Errorf("failed to get otp: %w", err)
	}
	return code, nil
}

func (c *Cache) DeleteOTP(ctx context.Context, userId domain.UserId) error {
	if err := c.client.Del(ctx, otpKey(userId)).Err(); err != nil {
		return fmt.Errorf("failed to delete otp: %w", err)
	}
	return nil
}

// --- Refresh token slot ---

// SaveRefreshToken overwrites the user's single refresh slot. The overwrite
// is the rotation guarantee: the previous token stops working immediately.
func (c *Cache) SaveRefreshToken(ctx context.Context, userId domain.UserId, token string, ttl time.Duration) error {
	if err := c.client.Set(ctx, refreshKey(userId), token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

func (c *Cache) RefreshToken(ctx context.Context, userId domain.UserId) (string, error) {
	token, err := c.client.Get(ctx, refreshKey(userId)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", internal_errors.NotFound("No active session")
		}
		return "", fmt.Errorf("failed to get refresh token: %w", err)
	}
	return token, nil
}

func (c *Cache) DeleteRefreshToken(ctx context.Context, userId domain.UserId) error {
	if err := c.client.Del(ctx, refreshKey(userId)).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

// --- Blacklists ---

// BlacklistToken marks one access token as revoked for its remaining lifetime.
func (c *Cache) BlacklistToken(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // already expired, nothing to revoke
	}
	if err := c.client.Set(ctx, tokenBlKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

func (c *Cache) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := c.client.Exists(ctx, tokenBlKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return n > 0, nil
}

// BlacklistUser rejects every outstanding token of the user until ttl passes.
// Used after password reset to force re-login everywhere.
func (c *Cache) BlacklistUser(ctx context.Context, userId domain.UserId, ttl time.Duration) error {
	if err := c.client.Set(ctx, userBlKey(userId), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist user: %w", err)
	}
	return nil
}

func (c *Cache) IsUserBlacklisted(ctx context.Context, userId domain.UserId) (bool, error) {
	n, err := c.client.Exists(ctx, userBlKey(userId)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check user blacklist: %w", err)
	}
	return n > 0, nil
}

// --- Cached profile ---

// DeleteProfile drops any cached summary so a logged-out session can't read
// stale profile data.
func (c *Cache) DeleteProfile(ctx context.Context, userId domain.UserId) error {
	if err := c.client.Del(ctx, profileKey(userId)).Err(); err != nil {
		return fmt.Errorf("failed to delete cached profile: %w", err)
	}
	return nil
}
