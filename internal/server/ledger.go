package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/andinolabs/canje/internal/ledger/domain"
	"github.com/andinolabs/canje/pkg/db/pagination"
)

type balanceResponse struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ledgerEntryResponse struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Delta            int64     `json:"delta"`
	Reason           string    `json:"reason"`
	RelatedVoucherID *string   `json:"related_voucher_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func newLedgerEntryResponse(entry ledgerdomain.LedgerEntry) ledgerEntryResponse {
	resp := ledgerEntryResponse{
		ID:        entry.ID.String(),
		UserID:    entry.UserID,
		Delta:     entry.Delta,
		Reason:    string(entry.Reason),
		CreatedAt: entry.CreatedAt,
	}
	if entry.RelatedVoucherID != nil {
		voucherID := entry.RelatedVoucherID.String()
		resp.RelatedVoucherID = &voucherID
	}
	return resp
}

func (s *Server) GetBalance(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		AbortWithError(c, newValidationError("userId", "required", "userId is required"))
		return
	}

	balance, err := s.ledgerSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balanceResponse{
		UserID:    balance.UserID,
		Balance:   balance.Balance,
		Version:   balance.Version,
		UpdatedAt: balance.UpdatedAt,
	}})
}

func (s *Server) ListLedgerEntries(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		AbortWithError(c, newValidationError("userId", "required", "userId is required"))
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entries, pageInfo, err := s.ledgerSvc.History(c.Request.Context(), userID, query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]ledgerEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, newLedgerEntryResponse(entry))
	}

	c.JSON(http.StatusOK, gin.H{"data": resp, "page_info": pageInfo})
}

type creditRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) CreditUser(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		AbortWithError(c, newValidationError("userId", "required", "userId is required"))
		return
	}

	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.ledgerSvc.Credit(c.Request.Context(), ledgerdomain.CreditRequest{
		UserID: userID,
		Amount: req.Amount,
		Reason: ledgerdomain.EntryReason(strings.TrimSpace(req.Reason)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newLedgerEntryResponse(*entry)})
}
