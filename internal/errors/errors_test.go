package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	// 测试基本错误创建
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	// 测试带详情的错误
	err = New(ErrCatalogInvalid, "商品配置缺少价格")
	suite.NotNil(err)
	suite.Equal(ErrCatalogInvalid, err.Code)
	suite.Equal("商品配置无效", err.Message)
	suite.Equal("商品配置缺少价格", err.Details)

	// 测试多个详情
	err = New(ErrSerialOpen, "打开失败", "端口: /dev/ttyUSB0", "波特率: 9600")
	suite.Equal("打开失败; 端口: /dev/ttyUSB0; 波特率: 9600", err.Details)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrDuplicatePin, "通道 %d 已被商品 %s 占用", 17, "soap_hand")
	suite.NotNil(err)
	suite.Equal(ErrDuplicatePin, err.Code)
	suite.Equal("通道 17 已被商品 soap_hand 占用", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	// 包装标准错误
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrSerialRead)
	suite.NotNil(wrappedErr)
	suite.Equal(ErrSerialRead, wrappedErr.Code)
	suite.Equal("原始错误", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	// 包装nil错误
	nilErr := Wrap(nil, ErrUnknown)
	suite.Nil(nilErr)

	// 包装已有的AppError
	appErr := New(ErrStatusPoll, "终端无响应")
	wrappedAppErr := Wrap(appErr, ErrInvalidParam, "额外信息")
	suite.Equal(ErrStatusPoll, wrappedAppErr.Code) // 保留原始错误码
	suite.Contains(wrappedAppErr.Details, "额外信息")
}

// 测试格式化错误包装
func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("连接超时")
	wrappedErr := Wrapf(originalErr, ErrSerialOpen, "串口 %s 打开失败", "/dev/ttyUSB0")
	suite.NotNil(wrappedErr)
	suite.Equal(ErrSerialOpen, wrappedErr.Code)
	suite.Equal("串口 /dev/ttyUSB0 打开失败", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrSettlementSend)
	suite.True(Is(err, ErrSettlementSend))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrSettlementSend))

	// 标准错误不匹配任何错误码
	stdErr := errors.New("标准错误")
	suite.False(Is(stdErr, ErrSettlementSend))
}

// 测试获取错误码
func (suite *ErrorsTestSuite) TestGetCode() {
	suite.Equal(ErrorCode(0), GetCode(nil))
	suite.Equal(ErrMotorControl, GetCode(New(ErrMotorControl)))
	suite.Equal(ErrUnknown, GetCode(errors.New("标准错误")))
}

// 测试错误类别分组
func (suite *ErrorsTestSuite) TestGetCategory() {
	suite.Equal(CategoryTransport, GetCategory(New(ErrSerialWrite)))
	suite.Equal(CategoryProtocol, GetCategory(New(ErrStatusPoll)))
	suite.Equal(CategoryHardware, GetCategory(New(ErrChannelRead)))
	suite.Equal(CategoryValidation, GetCategory(New(ErrDuplicateID)))
	suite.Equal(CategorySettlement, GetCategory(New(ErrSettlementRejected)))
	suite.Equal(CategorySession, GetCategory(New(ErrSessionFatal)))
}

// 测试可重试判断
func (suite *ErrorsTestSuite) TestIsRetryable() {
	suite.True(IsRetryable(New(ErrSerialTimeout)))
	suite.True(IsRetryable(New(ErrProtocolResponse)))
	suite.True(IsRetryable(New(ErrMotorControl)))
	suite.False(IsRetryable(New(ErrCatalogInvalid)))
	suite.False(IsRetryable(New(ErrSettlementRejected)))
	suite.False(IsRetryable(nil))
}

// 测试错误消息格式
func (suite *ErrorsTestSuite) TestErrorString() {
	err := New(ErrDeviceReset)
	suite.Equal("[3004] 设备复位失败", err.Error())

	err = New(ErrDeviceReset, "终端未确认")
	suite.Equal("[3004] 设备复位失败: 终端未确认", err.Error())
}

// 测试Unwrap链
func (suite *ErrorsTestSuite) TestUnwrap() {
	originalErr := errors.New("底层错误")
	wrappedErr := Wrap(originalErr, ErrSerialRead)
	suite.True(errors.Is(wrappedErr, originalErr))
}

// TestErrorsTestSuite 运行测试套件
func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
