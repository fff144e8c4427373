package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 {
		cw.buf.Write(b)
	} else if remain := cw.limit - cw.size; remain > 0 {
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// cacheKey is prefix:<path>:<user>:<sha1(query)>.  Responses are per caller
// because every listing is filtered by the caller's role and relations.
func cacheKey(prefix, path, user, query string) string {
	sum := sha1.Sum([]byte(query))
	return fmt.Sprintf("%s:%s:%s:%x", prefix, path, user, sum[:])
}

// pathPattern matches the entries of one path for every user and query.
func pathPattern(prefix, path string) string {
	return prefix + ":" + escapeGlob(path) + ":*"
}

// subtreePattern matches the entries of every path below path, so that
// dropping /v1/time also drops /v1/time/active.
func subtreePattern(prefix, path string) string {
	return prefix + ":" + escapeGlob(strings.TrimRight(path, "/")) + "/*"
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)
	return r.Replace(s)
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// NewRedisCache caches successful responses of the configured methods,
// headers included, per path and caller.  Websocket upgrades are never
// cached.  Mutations drop entries through RedisInvalidator.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passthrough
	}
	if log == nil {
		log = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	maxBody := int64(cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			if !cfg.Methods[strings.ToUpper(r.Method)] || strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				return next(c)
			}

			ctx := r.Context()
			key := cacheKey(cfg.Prefix, r.URL.Path, userID(c), r.URL.RawQuery)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, "Content-Length") {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					if len(body) > 0 {
						_, _ = c.Response().Write(body)
					}
					return nil
				}
			} else if err != redis.Nil {
				log.Debug("cache read failed", zap.String("key", key), zap.Error(err))
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}

			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			if err := rdb.SetEx(context.WithoutCancel(ctx), key, payload, ttl).Err(); err != nil {
				log.Debug("cache write failed", zap.String("key", key), zap.Error(err))
			}
			return nil
		}
	}
}

// RedisInvalidator drops every cached entry of a path and of the paths
// below it, for all users and queries.  A nil client makes it a no-op.
type RedisInvalidator struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisInvalidator(cfg config.CacheConfig, rdb *redis.Client) *RedisInvalidator {
	return &RedisInvalidator{rdb: rdb, prefix: cfg.Prefix}
}

// Invalidate scans for each path's entries and deletes them.
func (i *RedisInvalidator) Invalidate(ctx context.Context, paths ...string) error {
	if i == nil || i.rdb == nil {
		return nil
	}
	for _, p := range paths {
		for _, pattern := range []string{pathPattern(i.prefix, p), subtreePattern(i.prefix, p)} {
			if err := i.drop(ctx, pattern); err != nil {
				return fmt.Errorf("invalidate %s: %w", p, err)
			}
		}
	}
	return nil
}

func (i *RedisInvalidator) drop(ctx context.Context, pattern string) error {
	iter := i.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return i.rdb.Del(ctx, keys...).Err()
}
