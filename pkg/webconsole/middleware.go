package webconsole

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// 上下文键
const (
	contextKeyUsername  = "username"
	contextKeyRequestID = "request_id"
)

// HeaderRequestID 请求ID头
const HeaderRequestID = "X-Request-ID"

// recoveryMiddleware 处理器panic时返回500
func (c *Console) recoveryMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				c.recoverer.HandlePanic(p)
				ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "服务器内部错误",
				})
			}
		}()
		ctx.Next()
	}
}

// requestIDMiddleware 为每个请求分配请求ID
func (c *Console) requestIDMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		ctx.Set(contextKeyRequestID, id)
		ctx.Header(HeaderRequestID, id)
		ctx.Next()
	}
}

// loggingMiddleware 记录请求日志
func (c *Console) loggingMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		c.logger.Debug("处理请求",
			"method", ctx.Request.Method,
			"path", ctx.Request.URL.Path,
			"status", ctx.Writer.Status(),
			"duration", time.Since(start),
			"client", ctx.ClientIP(),
			"request_id", ctx.GetString(contextKeyRequestID))
	}
}

// authMiddleware 创建基本认证中间件
func (c *Console) authMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		username, password, hasAuth := ctx.Request.BasicAuth()
		if hasAuth &&
			subtle.ConstantTimeCompare([]byte(username), []byte(c.config.Username)) == 1 &&
			subtle.ConstantTimeCompare([]byte(password), []byte(c.config.Password)) == 1 {
			ctx.Set(contextKeyUsername, username)
			ctx.Next()
			return
		}

		// 认证失败
		c.logger.Warn("认证失败", "client", ctx.ClientIP(), "user", username)
		ctx.Header("WWW-Authenticate", `Basic realm="Plugin Admin"`)
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "未授权访问",
		})
	}
}

// limiterSet 按客户端IP的令牌桶
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newLimiterSet(perSecond float64, burst int) *limiterSet {
	return &limiterSet{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[key] = l
	}
	return l
}

// rateLimitMiddleware 创建请求限制中间件
func (c *Console) rateLimitMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		clientIP := ctx.ClientIP()
		if !c.limiters.get(clientIP).Allow() {
			c.logger.Warn("请求过于频繁", "client", clientIP)
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "请求过于频繁，请稍后再试",
			})
			return
		}
		ctx.Next()
	}
}
