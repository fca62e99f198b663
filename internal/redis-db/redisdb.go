/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redis_db

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 500 * time.Millisecond

// Redis holds the client shared by the queue, lock and cache.
type Redis struct {
	client redis.UniversalClient
}

// ParseRedisURL accepts bare host:port addresses, redis:// and rediss:// URLs, password-only
// URLs without the leading colon, and Azure cache hosts (which always get TLS).
func ParseRedisURL(rawURL string, skipTLSVerify bool) (*redis.Options, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("redis address is empty")
	}

	if isBareAddress(rawURL) {
		return &redis.Options{Addr: rawURL}, nil
	}

	rawURL = normalisePasswordOnly(rawURL)

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		opts = manualOptions(rawURL)
	}

	if opts.TLSConfig != nil && skipTLSVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in via config
	}
	return opts, nil
}

func isBareAddress(raw string) bool {
	return strings.Count(raw, ":") == 1 && !strings.Contains(raw, "@") && !strings.Contains(raw, "//")
}

// normalisePasswordOnly rewrites redis://secret@host to redis://:secret@host.
func normalisePasswordOnly(raw string) string {
	if !strings.HasPrefix(raw, "redis://") || !strings.Contains(raw, "@") {
		return raw
	}
	userInfo, host, found := strings.Cut(strings.TrimPrefix(raw, "redis://"), "@")
	if !found || strings.Contains(userInfo, ":") {
		return raw
	}
	return fmt.Sprintf("redis://:%s@%s", userInfo, host)
}

func manualOptions(raw string) *redis.Options {
	host := raw
	password := ""
	if userInfo, rest, found := strings.Cut(raw, "@"); found {
		password = strings.TrimPrefix(strings.TrimPrefix(userInfo, "redis://"), ":")
		host = rest
	}

	opts := &redis.Options{Addr: host, Password: password}
	if strings.Contains(host, "redis.cache.windows.net") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// NewRedisClient connects to a single instance when given one address and to a cluster otherwise.
// The connection is verified with a ping.
func NewRedisClient(addresses []string, skipTLSVerify bool) (*Redis, error) {
	if len(addresses) == 0 {
		return nil, errors.New("redis addresses list cannot be empty")
	}

	var client redis.UniversalClient
	if len(addresses) == 1 {
		opts, err := ParseRedisURL(addresses[0], skipTLSVerify)
		if err != nil {
			return nil, err
		}
		client = redis.NewClient(opts)
	} else {
		clusterOpts, err := clusterOptions(addresses, skipTLSVerify)
		if err != nil {
			return nil, err
		}
		client = redis.NewUniversalClient(clusterOpts)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{client: client}, nil
}

func clusterOptions(addresses []string, skipTLSVerify bool) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}
	useTLS := false
	for _, addr := range addresses {
		parsed, err := ParseRedisURL(addr, skipTLSVerify)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		useTLS = useTLS || parsed.TLSConfig != nil
	}
	if useTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: skipTLSVerify} // #nosec G402 -- opt-in via config
	}
	return opts, nil
}

func (r *Redis) Client() redis.UniversalClient {
	return r.client
}
