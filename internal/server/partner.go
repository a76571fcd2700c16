package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	voucherdomain "github.com/andinolabs/canje/internal/voucher/domain"
)

// PresentVoucher moves an issued voucher to presented on behalf of the
// partner fulfilling it.
func (s *Server) PresentVoucher(c *gin.Context) {
	voucher, err := s.partnerVoucherFromCode(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	updated, err := s.voucherSvc.Present(c.Request.Context(), voucher.Code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": updated})
}

// ConsumeVoucher marks a presented voucher as fulfilled, the terminal success
// state.
func (s *Server) ConsumeVoucher(c *gin.Context) {
	voucher, err := s.partnerVoucherFromCode(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	updated, err := s.voucherSvc.Consume(c.Request.Context(), voucher.Code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": updated})
}

// partnerVoucherFromCode resolves the voucher named in the URL and verifies
// the authenticated key's partner actually backs its reward. A voucher for
// another partner's reward reads as not found so codes cannot be probed
// across partners.
func (s *Server) partnerVoucherFromCode(c *gin.Context) (*voucherdomain.Voucher, error) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		return nil, newValidationError("code", "required", "code is required")
	}

	key := partnerKeyFromContext(c)
	if key == nil {
		return nil, ErrUnauthorized
	}

	ctx := c.Request.Context()
	voucher, err := s.voucherSvc.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	reward, err := s.catalogSvc.GetReward(ctx, voucher.RewardID)
	if err != nil {
		return nil, err
	}
	if reward.PartnerID != key.PartnerID {
		return nil, ErrNotFound
	}

	return voucher, nil
}
