package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/soap-vend/internal/repository"
	"github.com/wfunc/soap-vend/internal/vending"
	"gorm.io/gorm"
)

// TransactionAPI 售卖记录查询API，供商家远程对账
type TransactionAPI struct {
	repo *repository.VendTransactionRepository
}

// NewTransactionAPI 创建售卖记录API
func NewTransactionAPI(repo *repository.VendTransactionRepository) *TransactionAPI {
	return &TransactionAPI{
		repo: repo,
	}
}

// RegisterRoutes 注册路由
func (api *TransactionAPI) RegisterRoutes(router gin.IRouter) {
	txs := router.Group("/api/v1/transactions")
	{
		txs.GET("", api.ListTransactions)       // 查询会话列表
		txs.GET("/latest", api.GetLatest)       // 获取最近一笔会话
		txs.GET("/stats", api.GetStats)         // 获取结算统计
		txs.GET("/:session_id", api.GetBySession) // 按会话ID查询
	}
}

// ListTransactions 分页查询会话列表
func (api *TransactionAPI) ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	p := repository.NewPagination(page, pageSize)

	var (
		txs interface{}
		err error
	)
	if outcome := c.Query("outcome"); outcome != "" {
		txs, err = api.repo.ListByOutcome(c.Request.Context(), outcome, p)
	} else {
		txs, err = api.repo.List(c.Request.Context(), p)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      txs,
		"total":     p.Total,
		"page":      p.Page,
		"page_size": p.PageSize,
	})
}

// GetLatest 获取最近一笔会话
func (api *TransactionAPI) GetLatest(c *gin.Context) {
	tx, err := api.repo.Latest(c.Request.Context())
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "暂无会话记录"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tx})
}

// GetBySession 按会话ID查询
func (api *TransactionAPI) GetBySession(c *gin.Context) {
	sessionID := c.Param("session_id")

	tx, err := api.repo.GetBySessionID(c.Request.Context(), sessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tx})
}

// GetStats 获取结算统计，默认统计最近24小时
func (api *TransactionAPI) GetStats(c *gin.Context) {
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	ctx := c.Request.Context()

	cents, err := api.repo.SumCompletedCents(ctx, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "统计失败",
			"message": err.Error(),
		})
		return
	}

	completed, err := api.repo.CountByOutcome(ctx, vending.OutcomeComplete)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "统计失败",
			"message": err.Error(),
		})
		return
	}
	cancelled, _ := api.repo.CountByOutcome(ctx, vending.OutcomeCancelled)
	failed, _ := api.repo.CountByOutcome(ctx, vending.OutcomeFailed)

	c.JSON(http.StatusOK, gin.H{
		"since":           since.Format(time.RFC3339),
		"completed_cents": cents,
		"completed":       completed,
		"cancelled":       cancelled,
		"failed":          failed,
	})
}
