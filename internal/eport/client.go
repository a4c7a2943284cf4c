package eport

import (
	"bytes"
	"io"
	"time"

	"github.com/tarm/serial"
	"github.com/wfunc/soap-vend/internal/config"
	"github.com/wfunc/soap-vend/internal/errors"
	"github.com/wfunc/soap-vend/internal/logger"
	"go.uber.org/zap"
)

// SerialPort 串口接口（用于测试）
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// Client ePort协议客户端
// 独占串口传输；编码/解码委托给本包的纯函数，
// 每次写命令后等待固定的settle时间再读取响应
type Client struct {
	port        SerialPort
	settleDelay time.Duration
	readTimeout time.Duration
	logger      *zap.Logger
}

// NewClient 创建ePort客户端
func NewClient(port SerialPort, settleDelay, readTimeout time.Duration) *Client {
	return &Client{
		port:        port,
		settleDelay: settleDelay,
		readTimeout: readTimeout,
		logger:      logger.GetModuleLogger("serial"),
	}
}

// Open 打开到ePort终端的串口连接（带重试）
func Open(cfg *config.SerialConfig) (*Client, error) {
	// 解析校验位
	parity := serial.ParityNone
	switch cfg.Parity {
	case "O", "odd":
		parity = serial.ParityOdd
	case "E", "even":
		parity = serial.ParityEven
	}

	sc := &serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		Size:        byte(cfg.DataBits),
		Parity:      parity,
		StopBits:    serial.StopBits(cfg.StopBits),
		ReadTimeout: cfg.ReadTimeout,
	}

	log := logger.GetModuleLogger("serial")

	var lastErr error
	for attempt := 1; attempt <= cfg.OpenRetries; attempt++ {
		port, err := serial.OpenPort(sc)
		if err == nil {
			// 给终端初始化留出时间
			time.Sleep(cfg.SettleDelay)
			log.Info("ePort串口连接成功",
				zap.String("port", cfg.Port),
				zap.Int("baud_rate", cfg.BaudRate),
				zap.Int("attempt", attempt))
			return NewClient(port, cfg.SettleDelay, cfg.ReadTimeout), nil
		}

		lastErr = err
		log.Warn("ePort串口打开失败",
			zap.String("port", cfg.Port),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.OpenRetries),
			zap.Error(err))

		if attempt < cfg.OpenRetries {
			time.Sleep(cfg.RetryDelay)
		}
	}

	return nil, errors.Wrapf(lastErr, errors.ErrSerialOpen,
		"串口 %s 打开失败（%d次尝试）", cfg.Port, cfg.OpenRetries)
}

// Close 关闭串口
func (c *Client) Close() error {
	if c.port == nil {
		return nil
	}
	return c.port.Close()
}

// Status 查询终端状态
func (c *Client) Status() (Status, error) {
	raw, err := c.command(EncodeStatusRequest())
	if err != nil {
		return Status{}, errors.Wrap(err, errors.ErrStatusPoll)
	}
	return DecodeStatus(raw), nil
}

// Reset 复位终端
func (c *Client) Reset() error {
	if err := c.write(EncodeReset()); err != nil {
		return errors.Wrap(err, errors.ErrDeviceReset)
	}
	time.Sleep(c.settleDelay)
	return nil
}

// RequestAuthorization 请求预授权
func (c *Client) RequestAuthorization(amountCents uint32) error {
	if err := c.write(EncodeAuthorizationRequest(amountCents)); err != nil {
		return errors.Wrap(err, errors.ErrAuthRequest)
	}
	time.Sleep(c.settleDelay)
	return nil
}

// SendTransactionResult 发送交易结算
func (c *Client) SendTransactionResult(lineItemCount, quantity, priceCents uint32, itemID, description string) error {
	cmd := EncodeTransactionResult(lineItemCount, quantity, priceCents, itemID, description)
	if err := c.write(cmd); err != nil {
		return errors.Wrap(err, errors.ErrSettlementSend)
	}
	time.Sleep(c.settleDelay)
	return nil
}

// TransactionID 查询上一笔交易的终端交易ID
// 先发送查询命令，再通过状态查询读取17响应；终端未返回时返回空串
func (c *Client) TransactionID() (string, error) {
	if err := c.write(EncodeTransactionIDRequest()); err != nil {
		return "", errors.Wrap(err, errors.ErrSerialWrite)
	}
	time.Sleep(c.settleDelay)

	raw, err := c.command(EncodeStatusRequest())
	if err != nil {
		return "", errors.Wrap(err, errors.ErrSerialRead)
	}

	id, ok := DecodeTransactionID(raw)
	if !ok {
		return "", nil
	}
	return id, nil
}

// command 写命令、等待settle时间并读取一行响应
func (c *Client) command(cmd []byte) ([]byte, error) {
	if err := c.write(cmd); err != nil {
		return nil, err
	}
	time.Sleep(c.settleDelay)
	return c.readLine()
}

// write 写入完整命令
func (c *Client) write(cmd []byte) error {
	if c.port == nil {
		return errors.New(errors.ErrSerialClosed)
	}

	if _, err := c.port.Write(cmd); err != nil {
		return errors.Wrap(err, errors.ErrSerialWrite)
	}

	c.logger.Debug("命令已发送", zap.Binary("command", cmd))
	return nil
}

// readLine 读取一行响应（以CR结尾），超时即失败而非无限等待
func (c *Client) readLine() ([]byte, error) {
	if c.port == nil {
		return nil, errors.New(errors.ErrSerialClosed)
	}

	var line []byte
	buf := make([]byte, 64)
	deadline := time.Now().Add(c.readTimeout)

	for {
		n, err := c.port.Read(buf)
		if err != nil && err != io.EOF {
			return nil, errors.Wrap(err, errors.ErrSerialRead)
		}

		if n > 0 {
			line = append(line, buf[:n]...)
			if idx := bytes.IndexByte(line, CR); idx >= 0 {
				resp := bytes.TrimSpace(line[:idx])
				c.logger.Debug("收到响应", zap.ByteString("response", resp))
				return resp, nil
			}
		}

		if time.Now().After(deadline) {
			if len(line) > 0 {
				// 无终止符的残缺响应也交给解码层分类
				return bytes.TrimSpace(line), nil
			}
			return nil, errors.Newf(errors.ErrSerialTimeout, "读取超时（%v）", c.readTimeout)
		}
	}
}
