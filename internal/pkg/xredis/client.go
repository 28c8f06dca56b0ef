package xredis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// NewClient builds and pings a redis client from the config.
func NewClient(cfg Config) (*redis.Client, error) {
	opts, err := NewOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// NewOptions resolves the config into redis options. URL mode (redis:// or
// rediss://) takes priority over the plain addr mode; explicit config fields
// override URL credentials.
func NewOptions(cfg Config) (*redis.Options, error) {
	opts := &redis.Options{}

	switch {
	case cfg.URL != "":
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}

		switch u.Scheme {
		case "redis", "rediss":
		default:
			return nil, fmt.Errorf("unsupported redis scheme: %s (expected redis:// or rediss://)", u.Scheme)
		}

		if u.Host == "" {
			return nil, errors.New("redis url missing host")
		}

		opts.Addr = u.Host

		if u.User != nil {
			opts.Username = u.User.Username()
			if pwd, ok := u.User.Password(); ok {
				opts.Password = pwd
			}
		}

		if dbStr := strings.TrimPrefix(u.Path, "/"); dbStr != "" {
			db, err := strconv.Atoi(dbStr)
			if err != nil {
				return nil, fmt.Errorf("invalid redis db in url: %w", err)
			}

			opts.DB = db
		}

		if u.Scheme == "rediss" {
			opts.TLSConfig = &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: cfg.TLSInsecureSkipVerify, // #nosec G402 -- User explicitly controls this via config
			}
		}
	case cfg.Addr != "":
		opts.Addr = strings.TrimSpace(cfg.Addr)
	default:
		return nil, errors.New("redis addr or url is required")
	}

	if cfg.Username != "" {
		opts.Username = cfg.Username
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	if cfg.DB != nil {
		opts.DB = *cfg.DB
	}

	if cfg.TLS && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.TLSInsecureSkipVerify, // #nosec G402 -- User explicitly controls this via config
		}
	}

	if opts.TLSConfig == nil && cfg.TLSInsecureSkipVerify {
		return nil, errors.New("tls_insecure_skip_verify requires TLS to be enabled (tls=true or rediss://)")
	}

	return opts, nil
}
