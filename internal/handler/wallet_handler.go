package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studiare/tuition-billing/internal/service"
	"github.com/studiare/tuition-billing/pkg/response"
)

// WalletHandler exposes wallet balance reads.
type WalletHandler struct {
	wallets *service.WalletService
}

// NewWalletHandler constructs WalletHandler.
func NewWalletHandler(wallets *service.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// GetBalance handles GET /wallets/:studentID.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	wallet, err := h.wallets.GetBalance(c.Request.Context(), c.Param("studentID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, wallet)
}
