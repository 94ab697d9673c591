package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/growfi/growfi-server/internal/config"
)

// recorder tees the response body into buf, up to limit bytes when limit
// is positive, while writing it through to the client.
type recorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	keep := b
	if r.limit > 0 {
		room := r.limit - r.size
		switch {
		case room <= 0:
			keep = nil
		case int64(len(b)) > room:
			keep = b[:room]
		}
	}
	r.buf.Write(keep)
	r.size += int64(len(b))
	return r.ResponseWriter.Write(b)
}

func (r *recorder) truncated() bool { return r.limit > 0 && r.size > r.limit }

// cachedResponse is what a cache entry holds.
type cachedResponse struct {
	Status int         `json:"s"`
	Header http.Header `json:"h,omitempty"`
	Body   []byte      `json:"b,omitempty"`
}

// write replays the cached response on c.
func (cr cachedResponse) write(c echo.Context) error {
	h := c.Response().Header()
	for k, vals := range cr.Header {
		if strings.EqualFold(k, echo.HeaderContentLength) {
			continue
		}
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	h.Set("X-Cache", "HIT")
	c.Response().WriteHeader(cr.Status)
	_, err := c.Response().Write(cr.Body)
	return err
}

// cacheKeyDims lists the request parts hashed into the key per strategy;
// the default is route plus query.  The concrete path is always included
// because route patterns hide path params.
var cacheKeyDims = map[string][]string{
	"route":              {"route"},
	"method_route":       {"method", "route"},
	"method_route_query": {"method", "route", "query"},
}

func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
	dims, ok := cacheKeyDims[strings.ToLower(cfg.KeyStrategy)]
	if !ok {
		dims = []string{"route", "query"}
	}
	r := c.Request()
	h := sha256.New()
	for _, d := range dims {
		var v string
		switch d {
		case "method":
			v = r.Method
		case "route":
			v = c.Path()
		case "query":
			v = r.URL.RawQuery
		}
		h.Write([]byte(d + "=" + v + "\n"))
	}
	h.Write([]byte("path=" + r.URL.Path + "\n"))
	return cfg.Prefix + ":" + hex.EncodeToString(h.Sum(nil)[:16])
}

// NewRedisCache caches 200 responses, headers included, in Redis.  Mount
// it only on public catalog routes; nothing user specific may pass
// through it.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passthrough
	}
	if log == nil {
		log = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKeyFrom(cfg, c)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var cr cachedResponse
				if json.Unmarshal(bs, &cr) == nil && cr.Status != 0 {
					return cr.write(c)
				}
			} else if !errors.Is(err, redis.Nil) {
				log.Debug("cache lookup failed", zap.String("key", key), zap.Error(err))
			}

			rec := &recorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.truncated() {
				return nil
			}

			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			bs, err := json.Marshal(cachedResponse{Status: rec.status, Header: hdr, Body: rec.buf.Bytes()})
			if err != nil {
				return nil
			}
			if err := rdb.Set(context.WithoutCancel(ctx), key, bs, ttl).Err(); err != nil {
				log.Debug("cache store failed", zap.String("key", key), zap.Error(err))
			}
			return nil
		}
	}
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc {
	return next
}
