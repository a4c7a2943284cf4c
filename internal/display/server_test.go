package display

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/soap-vend/internal/config"
	"github.com/wfunc/soap-vend/internal/product"
	"github.com/wfunc/soap-vend/internal/vending"
)

// newTestServer 启动内存HTTP服务和Hub
func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := &config.DisplayConfig{
		Path:            "/ws",
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteTimeout:    time.Second,
	}
	s := NewServer(cfg)
	go s.hub.Run()

	ts := httptest.NewServer(s.router())
	t.Cleanup(func() {
		s.hub.Stop()
		ts.Close()
	})
	return s, ts
}

// dialWS 建立WebSocket连接
func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent 读取下一条指定事件
func readEvent(t *testing.T, conn *websocket.Conn, event string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var msg struct {
			Event string                 `json:"event"`
			Data  map[string]interface{} `json:"data"`
		}
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &msg))
		if msg.Event == event {
			return msg.Data
		}
	}
	t.Fatalf("未收到事件 %s", event)
	return nil
}

// TestHealthEndpoint 测试健康检查
func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "no-cache")
}

// TestConnectReceivesSnapshot 测试新连接收到当前状态回放
func TestConnectReceivesSnapshot(t *testing.T) {
	s, ts := newTestServer(t)
	s.ChangeState(vending.StateReady)

	conn := dialWS(t, ts)
	data := readEvent(t, conn, EventChangeState)
	assert.Equal(t, "ready", data["state"])
}

// TestBroadcastStateChange 测试状态广播
func TestBroadcastStateChange(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dialWS(t, ts)
	readEvent(t, conn, EventChangeState) // 吃掉连接回放

	s.ChangeState(vending.StateDispensing)
	data := readEvent(t, conn, EventChangeState)
	assert.Equal(t, "dispensing", data["state"])
}

// TestBroadcastProductUpdate 测试商品实时更新事件字段
func TestBroadcastProductUpdate(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dialWS(t, ts)
	readEvent(t, conn, EventChangeState)

	p := &product.Product{ID: "soap_hand", Name: "Hand Soap", Unit: "oz"}
	s.UpdateProduct(p, 1.25, 0.19, true)

	data := readEvent(t, conn, EventUpdateProduct)
	assert.Equal(t, "soap_hand", data["product_id"])
	assert.Equal(t, "Hand Soap", data["product_name"])
	assert.Equal(t, 1.25, data["quantity"])
	assert.Equal(t, 0.19, data["price"])
	assert.Equal(t, true, data["is_active"])
}

// TestShowReceipt 测试小票事件先切到complete状态
func TestShowReceipt(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dialWS(t, ts)
	readEvent(t, conn, EventChangeState)

	items := []vending.LineItem{
		{ProductID: "soap_hand", ProductName: "Hand Soap", Quantity: 2.5, Unit: "oz", Price: 0.38},
	}
	s.ShowReceipt(items, 0.38, 0.0, 0.38, "02/25/2026 03:15 PM CST")

	state := readEvent(t, conn, EventChangeState)
	assert.Equal(t, "complete", state["state"])

	receipt := readEvent(t, conn, EventShowReceipt)
	assert.Equal(t, 0.38, receipt["total"])
	assert.Equal(t, "02/25/2026 03:15 PM CST", receipt["timestamp"])
}

// TestShowError 测试错误事件
func TestShowError(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dialWS(t, ts)
	readEvent(t, conn, EventChangeState)

	s.ShowError("机器故障", "E-HARDWARE")

	state := readEvent(t, conn, EventChangeState)
	assert.Equal(t, "error", state["state"])

	data := readEvent(t, conn, EventShowError)
	assert.Equal(t, "机器故障", data["message"])
	assert.Equal(t, "E-HARDWARE", data["code"])
}
