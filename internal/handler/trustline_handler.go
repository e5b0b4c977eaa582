package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"escrowflow/internal/trustline"
)

type OptionLister interface {
	ListOptions(network trustline.Network) []trustline.Option
}

type TrustlineHandler struct {
	registry OptionLister
	logger   *zap.Logger
}

func NewTrustlineHandler(registry OptionLister, logger *zap.Logger) *TrustlineHandler {
	return &TrustlineHandler{registry: registry, logger: logger}
}

// ListTrustlines 注资对话框的资产下拉选项
// GET /trustlines?network=testnet
func (h *TrustlineHandler) ListTrustlines(c *gin.Context) {
	raw := c.Query("network")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "network required"})
		return
	}

	// 未知网络返回空列表
	network, ok := trustline.ParseNetwork(raw)
	if !ok {
		network = trustline.Network(raw)
	}

	options := h.registry.ListOptions(network)
	h.logger.Debug("ListTrustlines",
		zap.String("network", raw),
		zap.Int("count", len(options)),
	)
	c.JSON(http.StatusOK, gin.H{
		"network": network,
		"options": options,
	})
}
