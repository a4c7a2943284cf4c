package display

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/soap-vend/internal/config"
	"github.com/wfunc/soap-vend/internal/logger"
	"github.com/wfunc/soap-vend/internal/product"
	"github.com/wfunc/soap-vend/internal/vending"
	"go.uber.org/zap"
)

// indexPage 内置的最小显示页，现场通常由机柜内的浏览器全屏打开
const indexPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Soap Vending</title></head>
<body>
<div id="state">idle</div>
<div id="products"></div>
<div id="total"></div>
<script>
var ws = new WebSocket("ws://" + location.host + "%s");
ws.onmessage = function (e) {
  var msg = JSON.parse(e.data);
  if (msg.event === "change_state") {
    document.getElementById("state").textContent = msg.data.state;
  } else if (msg.event === "update_total") {
    document.getElementById("total").textContent = "$" + msg.data.total.toFixed(2);
  }
};
</script>
</body>
</html>`

// Server 顾客显示端服务
// HTTP提供页面和健康检查，WebSocket向显示端推送会话事件；
// 实现vending.Display，所有推送都不阻塞核心流程
type Server struct {
	cfg    *config.DisplayConfig
	hub    *Hub
	srv    *http.Server
	logger *zap.Logger

	upgrader websocket.Upgrader

	// 新连接需要回放的当前状态
	mu       sync.Mutex
	state    string
	products []*product.Product

	// 挂载到同一HTTP服务的附加路由
	mounts []func(gin.IRouter)
}

// NewServer 创建显示端服务
func NewServer(cfg *config.DisplayConfig) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger.GetModuleLogger("display"),
		state:  vending.StateIdle,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// 机柜内本机浏览器访问，不校验来源
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.hub = NewHub(s.logger)
	s.hub.SetConnectHook(s.sendSnapshot)
	return s
}

// Mount 挂载附加路由，必须在Start之前调用
func (s *Server) Mount(fn func(gin.IRouter)) {
	s.mounts = append(s.mounts, fn)
}

// Start 启动显示端服务
func (s *Server) Start() error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.srv = &http.Server{Addr: addr, Handler: s.router()}

	go func() {
		s.logger.Info("显示端服务已启动", zap.String("addr", addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("显示端服务异常退出", zap.Error(err))
		}
	}()
	return nil
}

// router 构建HTTP路由
func (s *Server) router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// 显示端刷新必须拿到最新状态，禁止浏览器缓存
	engine.Use(func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Next()
	})

	engine.GET("/", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, fmt.Sprintf(indexPage, s.cfg.Path))
	})
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"clients": s.hub.ClientCount(),
		})
	})
	engine.GET(s.cfg.Path, s.handleWebSocket)

	for _, mount := range s.mounts {
		mount(engine)
	}

	return engine
}

// Stop 优雅关闭显示端服务
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Stop()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// handleWebSocket 升级连接并交给Hub
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket升级失败", zap.Error(err))
		return
	}
	s.hub.HandleConn(conn, s.cfg.WriteTimeout)
}

// sendSnapshot 给新连接回放当前状态和商品列表
func (s *Server) sendSnapshot(client *Client) {
	s.mu.Lock()
	state := s.state
	products := s.products
	s.mu.Unlock()

	s.hub.SendTo(client, EventChangeState, gin.H{"state": state})
	if len(products) > 0 {
		s.hub.SendTo(client, EventLoadProducts, gin.H{"products": products})
	}
}

// ChangeState 推送状态切换
func (s *Server) ChangeState(state string) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	s.hub.Broadcast(EventChangeState, gin.H{"state": state})
	s.logger.Info("显示状态切换",
		zap.String("from", prev),
		zap.String("to", state))
}

// LoadProducts 推送商品列表
func (s *Server) LoadProducts(products []*product.Product) {
	s.mu.Lock()
	s.products = products
	s.mu.Unlock()

	s.hub.Broadcast(EventLoadProducts, gin.H{"products": products})
}

// UpdateProduct 推送单个商品的实时出水量
func (s *Server) UpdateProduct(p *product.Product, quantity, price float64, active bool) {
	s.hub.Broadcast(EventUpdateProduct, gin.H{
		"product_id":   p.ID,
		"product_name": p.Name,
		"quantity":     quantity,
		"unit":         p.Unit,
		"price":        price,
		"is_active":    active,
	})
}

// UpdateTotal 推送交易总额
func (s *Server) UpdateTotal(total float64) {
	s.hub.Broadcast(EventUpdateTotal, gin.H{"total": total})
}

// UpdateTimer 推送超时倒计时
func (s *Server) UpdateTimer(secondsRemaining int, warning bool) {
	s.hub.Broadcast(EventUpdateTimer, gin.H{
		"seconds": secondsRemaining,
		"warning": warning,
	})
}

// ShowReceipt 推送最终小票
func (s *Server) ShowReceipt(items []vending.LineItem, subtotal, tax, total float64, timestamp string) {
	s.ChangeState(vending.StateComplete)
	s.hub.Broadcast(EventShowReceipt, gin.H{
		"items":     items,
		"subtotal":  subtotal,
		"tax":       tax,
		"total":     total,
		"timestamp": timestamp,
	})
	s.logger.Info("小票已推送",
		zap.Int("items", len(items)),
		zap.Float64("total", total))
}

// ShowError 推送错误画面
func (s *Server) ShowError(message, code string) {
	s.ChangeState(vending.StateError)
	s.hub.Broadcast(EventShowError, gin.H{
		"message": message,
		"code":    code,
	})
	s.logger.Warn("错误画面已推送",
		zap.String("message", message),
		zap.String("code", code))
}
