package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown      ErrorCode = 1000
	ErrInvalidParam ErrorCode = 1001
	ErrNotFound     ErrorCode = 1002
	ErrTimeout      ErrorCode = 1003
	ErrCanceled     ErrorCode = 1004

	// 串口传输错误 (2000-2999)
	ErrSerialOpen    ErrorCode = 2000
	ErrSerialWrite   ErrorCode = 2001
	ErrSerialRead    ErrorCode = 2002
	ErrSerialTimeout ErrorCode = 2003
	ErrSerialClosed  ErrorCode = 2004

	// ePort协议错误 (3000-3999)
	ErrProtocolResponse ErrorCode = 3000
	ErrProtocolChecksum ErrorCode = 3001
	ErrStatusPoll       ErrorCode = 3002
	ErrAuthRequest      ErrorCode = 3003
	ErrDeviceReset      ErrorCode = 3004

	// 机器硬件错误 (4000-4999)
	ErrChannelRead   ErrorCode = 4000
	ErrChannelWrite  ErrorCode = 4001
	ErrMotorControl  ErrorCode = 4002
	ErrSensorArm     ErrorCode = 4003
	ErrHardwareFatal ErrorCode = 4004

	// 配置校验错误 (5000-5999)
	ErrConfigLoad     ErrorCode = 5000
	ErrConfigParse    ErrorCode = 5001
	ErrCatalogInvalid ErrorCode = 5002
	ErrDuplicateID    ErrorCode = 5003
	ErrDuplicatePin   ErrorCode = 5004

	// 结算错误 (6000-6999)
	ErrSettlementSend     ErrorCode = 6000
	ErrSettlementRejected ErrorCode = 6001
	ErrTransactionTooBig  ErrorCode = 6002

	// 会话错误 (7000-7999)
	ErrSessionAborted ErrorCode = 7000
	ErrSessionFatal   ErrorCode = 7001
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:      "未知错误",
	ErrInvalidParam: "无效的参数",
	ErrNotFound:     "资源未找到",
	ErrTimeout:      "操作超时",
	ErrCanceled:     "操作已取消",

	// 串口传输错误
	ErrSerialOpen:    "串口打开失败",
	ErrSerialWrite:   "串口写入失败",
	ErrSerialRead:    "串口读取失败",
	ErrSerialTimeout: "串口通信超时",
	ErrSerialClosed:  "串口已关闭",

	// ePort协议错误
	ErrProtocolResponse: "无效的ePort响应",
	ErrProtocolChecksum: "校验和不匹配",
	ErrStatusPoll:       "状态查询失败",
	ErrAuthRequest:      "授权请求失败",
	ErrDeviceReset:      "设备复位失败",

	// 机器硬件错误
	ErrChannelRead:   "通道读取失败",
	ErrChannelWrite:  "通道写入失败",
	ErrMotorControl:  "电机控制失败",
	ErrSensorArm:     "传感器事件注册失败",
	ErrHardwareFatal: "硬件不可恢复",

	// 配置校验错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrCatalogInvalid: "商品配置无效",
	ErrDuplicateID:    "商品ID重复",
	ErrDuplicatePin:   "硬件通道重复",

	// 结算错误
	ErrSettlementSend:     "结算指令发送失败",
	ErrSettlementRejected: "结算被终端拒绝",
	ErrTransactionTooBig:  "交易超出限额",

	// 会话错误
	ErrSessionAborted: "售货会话已中止",
	ErrSessionFatal:   "售货会话不可恢复",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`              // 错误码
	Message string       `json:"message"`           // 错误消息
	Details string       `json:"details"`           // 详细信息
	Cause   error        `json:"-"`                 // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"`   // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	// 捕获调用栈
	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// Category 错误类别（按千位分组，调用方据此决定重试/中止/致命）
type Category int

const (
	CategoryGeneric    Category = 1
	CategoryTransport  Category = 2
	CategoryProtocol   Category = 3
	CategoryHardware   Category = 4
	CategoryValidation Category = 5
	CategorySettlement Category = 6
	CategorySession    Category = 7
)

// GetCategory 获取错误类别
func GetCategory(err error) Category {
	return Category(GetCode(err) / 1000)
}

// IsRetryable 判断错误是否可在调用点有限重试
// 传输、协议、硬件错误视为瞬态；配置和结算错误不重试
func IsRetryable(err error) bool {
	switch GetCategory(err) {
	case CategoryTransport, CategoryProtocol, CategoryHardware:
		return true
	default:
		return false
	}
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/wfunc/soap-vend/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more {
				break
			}

			// 只保留前10个栈帧
			if len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}
