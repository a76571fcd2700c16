package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	catalogdomain "github.com/andinolabs/canje/internal/catalog/domain"
	"github.com/andinolabs/canje/internal/providers/pdf"
)

func (s *Server) GetVoucherByID(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid voucher id"))
		return
	}

	voucher, err := s.voucherSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": voucher})
}

func (s *Server) ListUserVouchers(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		AbortWithError(c, newValidationError("userId", "required", "userId is required"))
		return
	}

	vouchers, err := s.voucherSvc.ListByUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vouchers})
}

// RenderVoucherPDF produces the printable document the user hands to the
// partner. Reward and partner details are resolved at render time so the
// document reflects the current catalog names.
func (s *Server) RenderVoucherPDF(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid voucher id"))
		return
	}

	ctx := c.Request.Context()
	voucher, err := s.voucherSvc.Get(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reward, err := s.catalogSvc.GetReward(ctx, voucher.RewardID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var partner *catalogdomain.Partner
	if reward.PartnerID != 0 {
		partner, err = s.catalogSvc.GetPartner(ctx, reward.PartnerID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	data := pdf.VoucherData{
		Code:          voucher.Code,
		RewardName:    reward.Name,
		RewardDetails: reward.Description,
		PointsSpent:   strconv.FormatInt(voucher.PointsSpent, 10),
		IssuedAt:      voucher.IssuedAt.Format(time.RFC1123),
		ExpiresAt:     voucher.ExpiresAt.Format(time.RFC1123),
		State:         string(voucher.State),
	}
	if partner != nil {
		data.PartnerName = partner.Name
		data.PartnerAddress = partner.Address
	}

	doc, err := s.pdfProvider.GenerateVoucher(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	content, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="voucher-`+voucher.Code+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", content)
}
