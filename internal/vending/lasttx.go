package vending

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wfunc/soap-vend/internal/logger"
	"go.uber.org/zap"
)

// TxLog 末次交易滚动日志
// 单文件，每次会话结束整体覆盖，仅用于现场排查，不参与业务正确性
type TxLog struct {
	path   string
	logger *zap.Logger
}

// NewTxLog 创建末次交易日志
func NewTxLog(path string) *TxLog {
	return &TxLog{
		path:   path,
		logger: logger.GetModuleLogger("session"),
	}
}

// Record 覆盖写入本次会话结果
func (l *TxLog) Record(sessionID string, tracker *Tracker, txID, outcome string) {
	if l == nil || l.path == "" {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "session: %s\n", sessionID)
	fmt.Fprintf(&b, "time: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "outcome: %s\n", outcome)
	if txID != "" {
		fmt.Fprintf(&b, "terminal_tx_id: %s\n", txID)
	}
	b.WriteString(tracker.Summary())
	b.WriteByte('\n')

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		l.logger.Warn("末次交易日志目录创建失败", zap.Error(err))
		return
	}
	if err := os.WriteFile(l.path, []byte(b.String()), 0644); err != nil {
		l.logger.Warn("末次交易日志写入失败", zap.String("path", l.path), zap.Error(err))
	}
}
