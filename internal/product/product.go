package product

import (
	"fmt"
	"math"
	"strings"

	"github.com/wfunc/soap-vend/internal/errors"
)

// Availability 商品可用状态
type Availability string

const (
	Available  Availability = "AVAILABLE"    // 正常售卖
	OutOfOrder Availability = "OUT_OF_ORDER" // 停售
)

// Product 单个商品的完整配置
// 启动时从配置构造一次，之后只读
type Product struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	PricePerUnit  float64      `json:"price_per_unit"`
	Unit          string       `json:"unit"`
	MotorPin      int          `json:"motor_pin"`
	FlowSensorPin int          `json:"flow_sensor_pin"`
	ButtonPin     int          `json:"button_pin"`
	PulsesPerUnit float64      `json:"pulses_per_unit"`
	Description   string       `json:"description,omitempty"`
	Status        Availability `json:"status,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// Validate 校验商品配置
func (p *Product) Validate() error {
	if p.ID == "" {
		return errors.New(errors.ErrCatalogInvalid, "商品ID不能为空")
	}
	if p.Name == "" {
		return errors.Newf(errors.ErrCatalogInvalid, "商品 %s: 名称不能为空", p.ID)
	}
	if p.PricePerUnit <= 0 {
		return errors.Newf(errors.ErrCatalogInvalid, "商品 %s: 单价必须为正数", p.ID)
	}
	if p.Unit == "" {
		return errors.Newf(errors.ErrCatalogInvalid, "商品 %s: 计量单位不能为空", p.ID)
	}
	if p.PulsesPerUnit <= 0 {
		return errors.Newf(errors.ErrCatalogInvalid, "商品 %s: 流量计标定必须为正数", p.ID)
	}
	if p.MotorPin < 0 || p.FlowSensorPin < 0 || p.ButtonPin < 0 {
		return errors.Newf(errors.ErrCatalogInvalid, "商品 %s: 通道号不能为负数", p.ID)
	}
	return nil
}

// Disabled 判断商品是否停售
// 状态为OUT_OF_ORDER或设置了非空提示信息都视为停售
func (p *Product) Disabled() bool {
	if strings.TrimSpace(string(p.Status)) == string(OutOfOrder) {
		return true
	}
	return strings.TrimSpace(p.Message) != ""
}

// CalculatePrice 按数量计算价格（保留2位小数）
func (p *Product) CalculatePrice(quantity float64) float64 {
	return Round2(quantity * p.PricePerUnit)
}

// QuantityForPulses 将脉冲数换算为数量（保留2位小数）
func (p *Product) QuantityForPulses(pulses uint64) float64 {
	return Round2(float64(pulses) / p.PulsesPerUnit)
}

// Round2 四舍五入到2位小数
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// String 人类可读的商品描述
func (p *Product) String() string {
	return fmt.Sprintf("%s ($%.2f/%s)", p.Name, p.PricePerUnit, p.Unit)
}
