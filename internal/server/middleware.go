package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	catalogdomain "github.com/andinolabs/canje/internal/catalog/domain"
)

const contextPartnerKey = "partner_api_key"

// AdminRequired gates the administration surface with the shared-secret
// header. User identity lives at the upstream gateway, so a static token is
// the whole admin story here.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		if s.cfg.AdminToken == "" || token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// PartnerKeyRequired authenticates the partner confirmation channel with a
// bearer API key and enforces the named scope. The resolved key record is
// stored on the context so handlers can check voucher ownership.
func (s *Server) PartnerKeyRequired(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		key, err := s.catalogSvc.AuthenticateAPIKey(c.Request.Context(), parts[1], s.clock.Now())
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !key.HasScope(scope) {
			AbortWithError(c, ErrForbidden)
			return
		}

		c.Set(contextPartnerKey, key)
		c.Next()
	}
}

func partnerKeyFromContext(c *gin.Context) *catalogdomain.PartnerAPIKey {
	value, ok := c.Get(contextPartnerKey)
	if !ok {
		return nil
	}
	key, _ := value.(*catalogdomain.PartnerAPIKey)
	return key
}
