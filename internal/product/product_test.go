package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/soap-vend/internal/errors"
)

// validProduct 返回一个合法的测试商品
func validProduct() *Product {
	return &Product{
		ID:            "soap_hand",
		Name:          "Hand Soap",
		PricePerUnit:  0.15,
		Unit:          "oz",
		MotorPin:      17,
		FlowSensorPin: 24,
		ButtonPin:     4,
		PulsesPerUnit: 5.4,
		Description:   "Gentle hand wash",
	}
}

// TestProductValidate 测试商品配置校验
func TestProductValidate(t *testing.T) {
	assert.NoError(t, validProduct().Validate())

	tests := []struct {
		name   string
		mutate func(*Product)
	}{
		{"空ID", func(p *Product) { p.ID = "" }},
		{"空名称", func(p *Product) { p.Name = "" }},
		{"零单价", func(p *Product) { p.PricePerUnit = 0 }},
		{"负单价", func(p *Product) { p.PricePerUnit = -0.15 }},
		{"空单位", func(p *Product) { p.Unit = "" }},
		{"零标定", func(p *Product) { p.PulsesPerUnit = 0 }},
		{"负标定", func(p *Product) { p.PulsesPerUnit = -5.4 }},
		{"负通道号", func(p *Product) { p.MotorPin = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProduct()
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.ErrCatalogInvalid, errors.GetCode(err))
		})
	}
}

// TestCalculatePrice 测试价格计算
func TestCalculatePrice(t *testing.T) {
	p := validProduct()

	assert.Equal(t, 0.15, p.CalculatePrice(1.0))
	assert.Equal(t, 0.38, p.CalculatePrice(2.5)) // 0.375 四舍五入
	assert.Equal(t, 1.50, p.CalculatePrice(10.0))
	assert.Equal(t, 0.0, p.CalculatePrice(0))
}

// TestQuantityForPulses 测试脉冲换算
func TestQuantityForPulses(t *testing.T) {
	p := validProduct()

	assert.Equal(t, 0.0, p.QuantityForPulses(0))
	assert.Equal(t, 0.93, p.QuantityForPulses(5))  // 5/5.4=0.9259
	assert.Equal(t, 2.41, p.QuantityForPulses(13)) // 13/5.4=2.4074
	assert.Equal(t, 5.0, p.QuantityForPulses(27))
}

// TestProductDisabled 测试停售判定
func TestProductDisabled(t *testing.T) {
	p := validProduct()
	assert.False(t, p.Disabled())

	p.Status = OutOfOrder
	assert.True(t, p.Disabled())

	p = validProduct()
	p.Message = "maintenance"
	assert.True(t, p.Disabled())

	p = validProduct()
	p.Message = "   "
	assert.False(t, p.Disabled())
}

// TestNewCatalog 测试目录构建
func TestNewCatalog(t *testing.T) {
	p1 := validProduct()
	p2 := &Product{
		ID: "soap_dish", Name: "Dish Soap", PricePerUnit: 0.20, Unit: "oz",
		MotorPin: 18, FlowSensorPin: 25, ButtonPin: 5, PulsesPerUnit: 6.0,
	}

	catalog, err := NewCatalog([]*Product{p1, p2})
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Count())

	got, err := catalog.Get("soap_hand")
	require.NoError(t, err)
	assert.Equal(t, "Hand Soap", got.Name)

	assert.Equal(t, "soap_dish", catalog.ByButtonPin(5).ID)
	assert.Nil(t, catalog.ByButtonPin(99))

	// 列表保持配置顺序
	list := catalog.List()
	require.Len(t, list, 2)
	assert.Equal(t, "soap_hand", list[0].ID)
	assert.Equal(t, "soap_dish", list[1].ID)
}

// TestNewCatalogEmpty 测试空目录拒绝
func TestNewCatalogEmpty(t *testing.T) {
	_, err := NewCatalog(nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCatalogInvalid, errors.GetCode(err))
}

// TestNewCatalogDuplicateID 测试重复ID拒绝
func TestNewCatalogDuplicateID(t *testing.T) {
	p1 := validProduct()
	p2 := validProduct()
	p2.MotorPin, p2.FlowSensorPin, p2.ButtonPin = 18, 25, 5

	_, err := NewCatalog([]*Product{p1, p2})
	require.Error(t, err)
	assert.Equal(t, errors.ErrDuplicateID, errors.GetCode(err))
}

// TestNewCatalogDuplicatePins 测试通道冲突拒绝
func TestNewCatalogDuplicatePins(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Product)
	}{
		{"电机通道冲突", func(p *Product) { p.FlowSensorPin, p.ButtonPin = 25, 5 }},
		{"流量计通道冲突", func(p *Product) { p.MotorPin, p.ButtonPin = 18, 5 }},
		{"按钮通道冲突", func(p *Product) { p.MotorPin, p.FlowSensorPin = 18, 25 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p1 := validProduct()
			p2 := validProduct()
			p2.ID = "soap_dish"
			tt.mutate(p2)

			_, err := NewCatalog([]*Product{p1, p2})
			require.Error(t, err)
			assert.Equal(t, errors.ErrDuplicatePin, errors.GetCode(err))
		})
	}
}

// TestCatalogGetMissing 测试查找不存在的商品
func TestCatalogGetMissing(t *testing.T) {
	catalog, err := NewCatalog([]*Product{validProduct()})
	require.NoError(t, err)

	_, err = catalog.Get("nope")
	require.Error(t, err)
	assert.Equal(t, errors.ErrNotFound, errors.GetCode(err))
}
