package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/counselign/counselign-api/internal/models"
)

type activityToucher interface {
	TouchLastActivity(ctx context.Context, userID string, ts time.Time) error
}

// TouchActivity advances the caller's activity cursor after the request has
// been served. Running after the handler matters: the feed endpoints read the
// cursor first, so everything new since the previous visit is still included
// in the response that marks it as seen. Failures are logged and ignored.
func TouchActivity(users activityToucher, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()

		claimsValue, exists := c.Get(ContextUserKey)
		if !exists || c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			return
		}
		if err := users.TouchLastActivity(c.Request.Context(), claims.UserID, time.Now().UTC()); err != nil {
			logger.Warn("failed to touch activity cursor", zap.String("user_id", claims.UserID), zap.Error(err))
		}
	}
}
