package eport

import (
	"bytes"
	"strconv"
	"strings"
)

// 协议控制字节（Serial ePort Protocol）
const (
	RS  byte = 0x1E // 记录分隔符
	GS  byte = 0x1D // 组分隔符
	CR  byte = 0x0D // 命令终止符
	ACK byte = 0x06 // 确认
	NAK byte = 0x15 // 拒绝
)

// 命令码定义（ASCII数字码）
const (
	CmdStatus            = "1"  // 状态查询
	CmdReset             = "3"  // 设备复位
	CmdTransactionID     = "13" // 交易ID查询
	CmdAuthRequest       = "21" // 预授权请求
	CmdTransactionResult = "22" // 交易结算
)

// 响应码定义
const (
	RespDisabled           = "6"  // 终端禁用（待复位）
	RespDeclinedPrefix     = "3"  // 授权被拒绝
	RespAwaitingSettlement = "9"  // 已授权，等待结算
	RespTransactionID      = "17" // 交易ID响应
)

// MaxDescriptionLen 结算描述字段的最大字节数（终端字段长度契约）
const MaxDescriptionLen = 30

// crcTable CRC16查找表（Serial ePort Protocol 附录B）
var crcTable = [256]uint16{
	0x0000, 0x1021, 0x2042, 0x3063, 0x4084, 0x50A5, 0x60C6, 0x70E7,
	0x8108, 0x9129, 0xA14A, 0xB16B, 0xC18C, 0xD1AD, 0xE1CE, 0xF1EF,
	0x1231, 0x0210, 0x3273, 0x2252, 0x52B5, 0x4294, 0x72F7, 0x62D6,
	0x9339, 0x8318, 0xB37B, 0xA35A, 0xD3BD, 0xC39C, 0xF3FF, 0xE3DE,
	0x2462, 0x3443, 0x0420, 0x1401, 0x64E6, 0x74C7, 0x44A4, 0x5485,
	0xA56A, 0xB54B, 0x8528, 0x9509, 0xE5EE, 0xF5CF, 0xC5AC, 0xD58D,
	0x3653, 0x2672, 0x1611, 0x0630, 0x76D7, 0x66F6, 0x5695, 0x46B4,
	0xB75B, 0xA77A, 0x9719, 0x8738, 0xF7DF, 0xE7FE, 0xD79D, 0xC7BC,
	0x48C4, 0x58E5, 0x6886, 0x78A7, 0x0840, 0x1861, 0x2802, 0x3823,
	0xC9CC, 0xD9ED, 0xE98E, 0xF9AF, 0x8948, 0x9969, 0xA90A, 0xB92B,
	0x5AF5, 0x4AD4, 0x7AB7, 0x6A96, 0x1A71, 0x0A50, 0x3A33, 0x2A12,
	0xDBFD, 0xCBDC, 0xFBBF, 0xEB9E, 0x9B79, 0x8B58, 0xBB3B, 0xAB1A,
	0x6CA6, 0x7C87, 0x4CE4, 0x5CC5, 0x2C22, 0x3C03, 0x0C60, 0x1C41,
	0xEDAE, 0xFD8F, 0xCDEC, 0xDDCD, 0xAD2A, 0xBD0B, 0x8D68, 0x9D49,
	0x7E97, 0x6EB6, 0x5ED5, 0x4EF4, 0x3E13, 0x2E32, 0x1E51, 0x0E70,
	0xFF9F, 0xEFBE, 0xDFDD, 0xCFFC, 0xBF1B, 0xAF3A, 0x9F59, 0x8F78,
	0x9188, 0x81A9, 0xB1CA, 0xA1EB, 0xD10C, 0xC12D, 0xF14E, 0xE16F,
	0x1080, 0x00A1, 0x30C2, 0x20E3, 0x5004, 0x4025, 0x7046, 0x6067,
	0x83B9, 0x9398, 0xA3FB, 0xB3DA, 0xC33D, 0xD31C, 0xE37F, 0xF35E,
	0x02B1, 0x1290, 0x22F3, 0x32D2, 0x4235, 0x5214, 0x6277, 0x7256,
	0xB5EA, 0xA5CB, 0x95A8, 0x8589, 0xF56E, 0xE54F, 0xD52C, 0xC50D,
	0x34E2, 0x24C3, 0x14A0, 0x0481, 0x7466, 0x6447, 0x5424, 0x4405,
	0xA7DB, 0xB7FA, 0x8799, 0x97B8, 0xE75F, 0xF77E, 0xC71D, 0xD73C,
	0x26D3, 0x36F2, 0x0691, 0x16B0, 0x6657, 0x7676, 0x4615, 0x5634,
	0xD94C, 0xC96D, 0xF90E, 0xE92F, 0x99C8, 0x89E9, 0xB98A, 0xA9AB,
	0x5844, 0x4865, 0x7806, 0x6827, 0x18C0, 0x08E1, 0x3882, 0x28A3,
	0xCB7D, 0xDB5C, 0xEB3F, 0xFB1E, 0x8BF9, 0x9BD8, 0xABBB, 0xBB9A,
	0x4A75, 0x5A54, 0x6A37, 0x7A16, 0x0AF1, 0x1AD0, 0x2AB3, 0x3A92,
	0xFD2E, 0xED0F, 0xDD6C, 0xCD4D, 0xBDAA, 0xAD8B, 0x9DE8, 0x8DC9,
	0x7C26, 0x6C07, 0x5C64, 0x4C45, 0x3CA2, 0x2C83, 0x1CE0, 0x0CC1,
	0xEF1F, 0xFF3E, 0xCF5D, 0xDF7C, 0xAF9B, 0xBFBA, 0x8FD9, 0x9FF8,
	0x6E17, 0x7E36, 0x4E55, 0x5E74, 0x2E93, 0x3EB2, 0x0ED1, 0x1EF0,
}

// Checksum 计算CRC16校验和
// 校验从第一个字节开始计算，包含所有控制字符，种子为0xFFFF
func Checksum(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

// appendChecksum 追加校验和（高字节在前）与终止符
func appendChecksum(payload []byte) []byte {
	crc := Checksum(payload)
	payload = append(payload, byte(crc>>8), byte(crc&0xFF))
	return append(payload, CR)
}

// EncodeStatusRequest 编码状态查询命令
func EncodeStatusRequest() []byte {
	return append([]byte(CmdStatus), CR)
}

// EncodeReset 编码复位命令
func EncodeReset() []byte {
	return append([]byte(CmdReset), CR)
}

// EncodeTransactionIDRequest 编码交易ID查询命令
func EncodeTransactionIDRequest() []byte {
	return append([]byte(CmdTransactionID), CR)
}

// EncodeAuthorizationRequest 编码预授权请求
// 格式: 21 RS <金额(分，十进制ASCII)> CRC高 CRC低 CR
// 本层不校验金额范围，由调用方负责
func EncodeAuthorizationRequest(amountCents uint32) []byte {
	payload := []byte(CmdAuthRequest)
	payload = append(payload, RS)
	payload = append(payload, []byte(strconv.FormatUint(uint64(amountCents), 10))...)
	return appendChecksum(payload)
}

// EncodeTransactionResult 编码交易结算命令
// 格式: 22 RS <行项目数> RS <数量> RS <价格(分)> RS <商品ID> RS <描述≤30字节> GS CRC高 CRC低 CR
// 超长描述静默截断到30字节，不报错
func EncodeTransactionResult(lineItemCount, quantity, priceCents uint32, itemID, description string) []byte {
	if len(description) > MaxDescriptionLen {
		description = description[:MaxDescriptionLen]
	}

	payload := []byte(CmdTransactionResult)
	payload = append(payload, RS)
	payload = append(payload, []byte(strconv.FormatUint(uint64(lineItemCount), 10))...)
	payload = append(payload, RS)
	payload = append(payload, []byte(strconv.FormatUint(uint64(quantity), 10))...)
	payload = append(payload, RS)
	payload = append(payload, []byte(strconv.FormatUint(uint64(priceCents), 10))...)
	payload = append(payload, RS)
	payload = append(payload, []byte(itemID)...)
	payload = append(payload, RS)
	payload = append(payload, []byte(description)...)
	payload = append(payload, GS)
	return appendChecksum(payload)
}

// StatusCode 终端状态分类
type StatusCode int

const (
	StatusUnknown            StatusCode = iota // 未识别的响应
	StatusDisabled                             // 终端禁用，需复位+授权
	StatusDeclined                             // 授权被银行拒绝
	StatusAwaitingSettlement                   // 已授权，等待结算
)

// String 返回状态名称
func (c StatusCode) String() string {
	switch c {
	case StatusDisabled:
		return "disabled"
	case StatusDeclined:
		return "declined"
	case StatusAwaitingSettlement:
		return "awaiting_settlement"
	default:
		return "unknown"
	}
}

// Status 终端状态响应
type Status struct {
	Code StatusCode // 分类结果
	Raw  string     // 原始响应（已去除终止符）
}

// DecodeStatus 解码状态响应
// 去除尾部终止符和空白后分类，未识别的负载归入StatusUnknown
func DecodeStatus(raw []byte) Status {
	trimmed := strings.TrimRight(string(bytes.TrimRight(raw, "\r\n")), " \t")

	status := Status{Raw: trimmed}
	switch {
	case trimmed == RespDisabled:
		status.Code = StatusDisabled
	case trimmed == RespAwaitingSettlement:
		status.Code = StatusAwaitingSettlement
	case strings.HasPrefix(trimmed, RespDeclinedPrefix):
		status.Code = StatusDeclined
	default:
		status.Code = StatusUnknown
	}
	return status
}

// DecodeTransactionID 解码交易ID响应
// 响应格式: 17 RS <交易ID> CR；仅当以17开头且至少两个RS分隔字段时成功
func DecodeTransactionID(raw []byte) (string, bool) {
	trimmed := bytes.TrimRight(raw, "\r\n")
	if !bytes.HasPrefix(trimmed, []byte(RespTransactionID)) {
		return "", false
	}

	parts := bytes.Split(trimmed, []byte{RS})
	if len(parts) < 2 {
		return "", false
	}

	id := strings.TrimSpace(string(parts[1]))
	if id == "" {
		return "", false
	}
	return id, true
}
