package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/andinolabs/canje/internal/ratelimit"
	redemptiondomain "github.com/andinolabs/canje/internal/redemption/domain"
)

// RedeemReward is the public redemption entrypoint. The request carries the
// caller's idempotency key, so a client is free to resubmit after a 503.
func (s *Server) RedeemReward(c *gin.Context) {
	var req redemptiondomain.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	limit, err := s.redeemLimiter.Allow(c.Request.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) && limit != nil && limit.RetryAfter > 0 {
			c.Header("Retry-After", strconv.FormatInt(int64(limit.RetryAfter.Seconds())+1, 10))
		}
		AbortWithError(c, err)
		return
	}

	result, err := s.redemptionSvc.Redeem(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": gin.H{
		"voucher":      result.Voucher,
		"balance":      result.Balance,
		"reward_stock": result.RewardStock,
		"replayed":     result.Replayed,
	}})
}

// CancelVoucher voids an issued voucher, refunding its points and returning
// the stock unit. Replaying a cancel is a no-op success.
func (s *Server) CancelVoucher(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid voucher id"))
		return
	}

	result, err := s.redemptionSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"voucher":  result.Voucher,
		"refunded": result.Refunded,
		"replayed": result.Replayed,
	}})
}
