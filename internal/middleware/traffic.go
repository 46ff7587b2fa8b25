package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ByteCounter receives request and response sizes.
type ByteCounter interface {
	AddRx(n int)
	AddTx(n int)
}

// TrafficMiddleware accounts HTTP bodies on the transport counters.
// Upgraded websocket connections are counted by the hub instead.
func TrafficMiddleware(counter ByteCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > 0 {
			counter.AddRx(int(c.Request.ContentLength))
		}
		c.Next()
		if n := c.Writer.Size(); n > 0 {
			counter.AddTx(n)
		}
	}
}

// BandwidthLimitMiddleware limits the bytes each IP moves through the HTTP
// server. limiter buckets hold bytes, not requests. The request line and body
// must fit the bucket up front; the response is charged afterwards and may
// drive the bucket into debt, which rejects the IP's next requests until it
// refills.
func BandwidthLimitMiddleware(limiter *RateLimiter, sec *SecurityLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		bucket := limiter.GetLimiter(ip)

		if !bucket.AllowN(time.Now(), requestSize(c.Request)) {
			sec.LogRateLimited(ip, "bandwidth")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "bandwidth limit exceeded",
			})
			return
		}

		c.Next()

		if n := c.Writer.Size(); n > 0 {
			bucket.ReserveN(time.Now(), min(n, bucket.Burst()))
		}
	}
}

func requestSize(r *http.Request) int {
	n := len(r.Method) + len(r.URL.RequestURI())
	if r.ContentLength > 0 {
		n += int(r.ContentLength)
	}
	return n
}
