// Package http 期权合约 HTTP 接口。调用方身份取自 X-Principal 头
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/optionsvault/internal/options/application"
	"github.com/wyfcoding/optionsvault/internal/options/domain"
	"github.com/wyfcoding/optionsvault/internal/options/infrastructure/custody"
	"github.com/wyfcoding/optionsvault/pkg/middleware"
)

// BalanceReader 结算资产余额查询，由 custody.Ledger 实现
type BalanceReader interface {
	Balance(ctx context.Context, asset, owner string) (uint64, error)
}

type Handler struct {
	engine   *application.OptionsService
	gov      *application.GovernanceService
	balances BalanceReader
}

func NewHandler(engine *application.OptionsService, gov *application.GovernanceService, balances BalanceReader) *Handler {
	return &Handler{engine: engine, gov: gov, balances: balances}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	opts := r.Group("/options")
	{
		opts.POST("", h.Write)
		opts.GET("/:id", h.GetOption)
		opts.POST("/:id/buy", h.Buy)
		opts.POST("/:id/exercise", h.Exercise)
	}

	r.GET("/positions/:user", h.GetPosition)

	protocol := r.Group("/protocol")
	{
		protocol.GET("", h.GetProtocol)
		protocol.PUT("/fee-rate", h.SetFeeRate)
	}

	feeds := r.Group("/pricefeeds")
	{
		feeds.GET("/:symbol", h.GetPriceFeed)
		feeds.PUT("/:symbol", h.UpdatePriceFeed)
	}

	wl := r.Group("/whitelist")
	{
		wl.GET("/assets", h.listWhitelist(domain.WhitelistAsset))
		wl.GET("/assets/:key", h.GetApprovedAsset)
		wl.PUT("/assets/:key", h.SetApprovedAsset)
		wl.GET("/symbols", h.listWhitelist(domain.WhitelistSymbol))
		wl.GET("/symbols/:key", h.GetAllowedSymbol)
		wl.PUT("/symbols/:key", h.SetAllowedSymbol)
	}

	r.GET("/assets/:asset/balances/:owner", h.GetBalance)
}

type WriteReq struct {
	Asset            string            `json:"asset" binding:"required"`
	CollateralAmount uint64            `json:"collateral_amount"`
	StrikePrice      uint64            `json:"strike_price"`
	Premium          uint64            `json:"premium"`
	Expiry           uint64            `json:"expiry"`
	Type             domain.OptionType `json:"option_type" binding:"required"`
}

func (h *Handler) Write(c *gin.Context) {
	var req WriteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.engine.Write(c.Request.Context(), caller(c), application.WriteCommand{
		Asset:            req.Asset,
		CollateralAmount: req.CollateralAmount,
		StrikePrice:      req.StrikePrice,
		Premium:          req.Premium,
		Expiry:           req.Expiry,
		Type:             req.Type,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"option_id": id})
}

// AssetReq 买入与行权都需要显式给出结算资产
type AssetReq struct {
	Asset string `json:"asset" binding:"required"`
}

func (h *Handler) Buy(c *gin.Context) {
	id, ok := optionID(c)
	if !ok {
		return
	}
	var req AssetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.Buy(c.Request.Context(), caller(c), application.BuyCommand{Asset: req.Asset, OptionID: id}); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"option_id": id})
}

func (h *Handler) Exercise(c *gin.Context) {
	id, ok := optionID(c)
	if !ok {
		return
	}
	var req AssetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.engine.Exercise(c.Request.Context(), caller(c), application.ExerciseCommand{Asset: req.Asset, OptionID: id})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetOption(c *gin.Context) {
	id, ok := optionID(c)
	if !ok {
		return
	}
	opt, err := h.engine.GetOption(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, opt)
}

// GetPosition ?expand=true 时附带期权详情
func (h *Handler) GetPosition(c *gin.Context) {
	ctx := c.Request.Context()
	pos, err := h.engine.GetUserPosition(ctx, c.Param("user"))
	if err != nil {
		writeError(c, err)
		return
	}
	if pos == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
		return
	}
	if c.Query("expand") != "true" {
		c.JSON(http.StatusOK, pos)
		return
	}

	written, err := h.engine.ListOptions(ctx, pos.Written.IDs())
	if err != nil {
		writeError(c, err)
		return
	}
	held, err := h.engine.ListOptions(ctx, pos.Held.IDs())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": pos, "written": written, "held": held})
}

func (h *Handler) GetProtocol(c *gin.Context) {
	ctx := c.Request.Context()
	owner, err := h.gov.Owner(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	rate, err := h.gov.GetProtocolFeeRate(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": owner, "protocol_fee_rate": rate})
}

type FeeRateReq struct {
	Rate *uint64 `json:"rate" binding:"required"`
}

func (h *Handler) SetFeeRate(c *gin.Context) {
	var req FeeRateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.gov.SetProtocolFeeRate(c.Request.Context(), caller(c), *req.Rate); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"protocol_fee_rate": *req.Rate})
}

func (h *Handler) GetPriceFeed(c *gin.Context) {
	feed, err := h.gov.GetPriceFeed(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

type PriceFeedReq struct {
	Price     uint64 `json:"price"`
	Timestamp uint64 `json:"timestamp"`
}

func (h *Handler) UpdatePriceFeed(c *gin.Context) {
	var req PriceFeedReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	symbol := c.Param("symbol")
	if err := h.gov.UpdatePriceFeed(c.Request.Context(), caller(c), symbol, req.Price, req.Timestamp); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, domain.PriceFeed{Symbol: symbol, Price: req.Price, Timestamp: req.Timestamp, Source: caller(c)})
}

type WhitelistReq struct {
	Approved *bool `json:"approved" binding:"required"`
}

func (h *Handler) SetApprovedAsset(c *gin.Context) {
	h.setWhitelist(c, h.gov.SetApprovedAsset)
}

func (h *Handler) SetAllowedSymbol(c *gin.Context) {
	h.setWhitelist(c, h.gov.SetAllowedSymbol)
}

func (h *Handler) setWhitelist(c *gin.Context, set func(ctx context.Context, caller, key string, approved bool) error) {
	var req WhitelistReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := c.Param("key")
	if err := set(c.Request.Context(), caller(c), key, *req.Approved); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "approved": *req.Approved})
}

func (h *Handler) GetApprovedAsset(c *gin.Context) {
	h.getWhitelist(c, h.gov.IsApprovedAsset)
}

func (h *Handler) GetAllowedSymbol(c *gin.Context) {
	h.getWhitelist(c, h.gov.IsAllowedSymbol)
}

func (h *Handler) getWhitelist(c *gin.Context, get func(ctx context.Context, key string) (bool, error)) {
	key := c.Param("key")
	ok, err := get(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "approved": ok})
}

func (h *Handler) listWhitelist(kind domain.WhitelistKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := h.gov.Whitelist(c.Request.Context(), kind)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"kind": kind, "entries": entries})
	}
}

func (h *Handler) GetBalance(c *gin.Context) {
	asset, owner := c.Param("asset"), c.Param("owner")
	bal, err := h.balances.Balance(c.Request.Context(), asset, owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset, "owner": owner, "balance": bal})
}

func caller(c *gin.Context) string {
	return c.GetHeader(middleware.PrincipalHeader)
}

func optionID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid option id"})
		return 0, false
	}
	return id, true
}

// writeError 领域错误按大类映射状态码，响应体带错误码
func writeError(c *gin.Context, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		c.JSON(statusOf(de.Kind), gin.H{"error": de.Message, "code": de.Code, "kind": de.Kind})
		return
	}

	switch {
	case errors.Is(err, application.ErrInvalidPrincipal):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, application.ErrNotDeployed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, custody.ErrAssetNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func statusOf(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindTransfer:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}
