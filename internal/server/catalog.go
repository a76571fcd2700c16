package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	catalogdomain "github.com/andinolabs/canje/internal/catalog/domain"
)

func (s *Server) ListRewards(c *gin.Context) {
	var query struct {
		PartnerID string `form:"partner_id"`
		Tag       string `form:"tag"`
		InStock   string `form:"in_stock"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	partnerID, err := parseOptionalSnowflakeID(query.PartnerID)
	if err != nil {
		AbortWithError(c, newValidationError("partner_id", "invalid_partner_id", "invalid partner_id"))
		return
	}

	inStock, err := parseOptionalBool(query.InStock)
	if err != nil {
		AbortWithError(c, newValidationError("in_stock", "invalid_in_stock", "invalid in_stock"))
		return
	}

	filter := catalogdomain.ListFilter{
		Tag: strings.TrimSpace(query.Tag),
	}
	if partnerID != nil {
		filter.PartnerID = *partnerID
	}
	if inStock != nil {
		filter.InStock = *inStock
	}

	rewards, err := s.catalogSvc.ListRewards(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rewards})
}

func (s *Server) GetRewardByID(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid reward id"))
		return
	}

	reward, err := s.catalogSvc.GetReward(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reward})
}

func (s *Server) ListPartners(c *gin.Context) {
	partners, err := s.catalogSvc.ListPartners(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": partners})
}

func (s *Server) GetPartnerByID(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid partner id"))
		return
	}

	partner, err := s.catalogSvc.GetPartner(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": partner})
}

func (s *Server) CreateReward(c *gin.Context) {
	var req catalogdomain.CreateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reward, err := s.catalogSvc.CreateReward(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reward})
}

func (s *Server) UpdateReward(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid reward id"))
		return
	}

	var req catalogdomain.UpdateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reward, err := s.catalogSvc.UpdateReward(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reward})
}

type createPartnerRequest struct {
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (s *Server) CreatePartner(c *gin.Context) {
	var req createPartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	partner, err := s.catalogSvc.CreatePartner(c.Request.Context(), &catalogdomain.Partner{
		Name:      strings.TrimSpace(req.Name),
		Category:  strings.TrimSpace(req.Category),
		Address:   strings.TrimSpace(req.Address),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": partner})
}

type issuePartnerKeyRequest struct {
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// IssuePartnerKey mints a confirmation-channel API key for a partner. The
// plaintext key is returned exactly once; only its hash is kept.
func (s *Server) IssuePartnerKey(c *gin.Context) {
	partnerID, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid partner id"))
		return
	}

	var req issuePartnerKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{catalogdomain.ScopePresent, catalogdomain.ScopeConsume}
	}

	plaintext, key, err := s.catalogSvc.IssueAPIKey(c.Request.Context(), partnerID, req.Scopes, req.ExpiresAt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"key_id":     key.ID.String(),
		"partner_id": key.PartnerID.String(),
		"key":        plaintext,
		"scopes":     []string(key.Scopes),
		"expires_at": key.ExpiresAt,
	}})
}
