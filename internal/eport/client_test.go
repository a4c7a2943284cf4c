package eport

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/soap-vend/internal/errors"
)

// MockSerialPort 模拟终端串口，按脚本返回响应
type MockSerialPort struct {
	mu          sync.Mutex
	readBuffer  bytes.Buffer
	written     [][]byte
	failWrites  bool
	closed      bool
}

// NewMockSerialPort 创建模拟串口
func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{}
}

// QueueResponse 预置一条终端响应
func (m *MockSerialPort) QueueResponse(resp []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuffer.Write(resp)
}

// Written 返回已写入的命令
func (m *MockSerialPort) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return 0, assert.AnError
	}
	cmd := make([]byte, len(p))
	copy(cmd, p)
	m.written = append(m.written, cmd)
	return len(p), nil
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBuffer.Read(p)
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockSerialPort) Flush() error { return nil }

// newTestClient 创建零延迟的测试客户端
func newTestClient(port SerialPort) *Client {
	return NewClient(port, 0, 50*time.Millisecond)
}

// TestClientStatus 测试状态查询往返
func TestClientStatus(t *testing.T) {
	port := NewMockSerialPort()
	port.QueueResponse([]byte("6\r"))

	client := newTestClient(port)
	status, err := client.Status()
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, status.Code)

	written := port.Written()
	require.Len(t, written, 1)
	assert.Equal(t, EncodeStatusRequest(), written[0])
}

// TestClientStatusTimeout 测试无响应时的超时失败
func TestClientStatusTimeout(t *testing.T) {
	port := NewMockSerialPort()

	client := newTestClient(port)
	_, err := client.Status()
	require.Error(t, err)
	assert.Equal(t, errors.ErrSerialTimeout, errors.GetCode(err))
}

// TestClientReset 测试复位命令
func TestClientReset(t *testing.T) {
	port := NewMockSerialPort()

	client := newTestClient(port)
	require.NoError(t, client.Reset())

	written := port.Written()
	require.Len(t, written, 1)
	assert.Equal(t, EncodeReset(), written[0])
}

// TestClientRequestAuthorization 测试预授权请求
func TestClientRequestAuthorization(t *testing.T) {
	port := NewMockSerialPort()

	client := newTestClient(port)
	require.NoError(t, client.RequestAuthorization(2000))

	written := port.Written()
	require.Len(t, written, 1)
	assert.Equal(t, EncodeAuthorizationRequest(2000), written[0])
}

// TestClientWriteFailure 测试写失败归类为传输错误
func TestClientWriteFailure(t *testing.T) {
	port := NewMockSerialPort()
	port.failWrites = true

	client := newTestClient(port)
	err := client.RequestAuthorization(2000)
	require.Error(t, err)
	assert.Equal(t, errors.ErrSerialWrite, errors.GetCode(err))
	assert.Equal(t, errors.CategoryTransport, errors.GetCategory(err))
}

// TestClientSendTransactionResult 测试结算发送
func TestClientSendTransactionResult(t *testing.T) {
	port := NewMockSerialPort()

	client := newTestClient(port)
	err := client.SendTransactionResult(1, 1, 38, "1", "2.50 oz hand soap")
	require.NoError(t, err)

	written := port.Written()
	require.Len(t, written, 1)
	assert.Equal(t, EncodeTransactionResult(1, 1, 38, "1", "2.50 oz hand soap"), written[0])
}

// TestClientTransactionID 测试交易ID查询
func TestClientTransactionID(t *testing.T) {
	port := NewMockSerialPort()
	resp := append(append([]byte("17"), RS), []byte("TX4711\r")...)
	port.QueueResponse(resp)

	client := newTestClient(port)
	id, err := client.TransactionID()
	require.NoError(t, err)
	assert.Equal(t, "TX4711", id)

	// 先写交易ID查询命令，再写状态查询读取响应
	written := port.Written()
	require.Len(t, written, 2)
	assert.Equal(t, EncodeTransactionIDRequest(), written[0])
	assert.Equal(t, EncodeStatusRequest(), written[1])
}

// TestClientTransactionIDUnavailable 测试终端未返回交易ID
func TestClientTransactionIDUnavailable(t *testing.T) {
	port := NewMockSerialPort()
	port.QueueResponse([]byte("9\r"))

	client := newTestClient(port)
	id, err := client.TransactionID()
	require.NoError(t, err)
	assert.Empty(t, id)
}
