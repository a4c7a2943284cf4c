package vending

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wfunc/soap-vend/internal/product"
)

var (
	handSoap = &product.Product{
		ID: "soap_hand", Name: "Hand Soap", PricePerUnit: 0.15, Unit: "oz",
		MotorPin: 17, FlowSensorPin: 24, ButtonPin: 4, PulsesPerUnit: 10,
	}
	laundrySoap = &product.Product{
		ID: "soap_laundry", Name: "Laundry Detergent", PricePerUnit: 0.12, Unit: "oz",
		MotorPin: 22, FlowSensorPin: 23, ButtonPin: 5, PulsesPerUnit: 10,
	}
	dishSoap = &product.Product{
		ID: "soap_dish", Name: "Dish Soap", PricePerUnit: 0.10, Unit: "oz",
		MotorPin: 5, FlowSensorPin: 6, ButtonPin: 13, PulsesPerUnit: 10,
	}
)

// TestTrackerEmpty 测试空交易
func TestTrackerEmpty(t *testing.T) {
	tr := NewTracker()
	assert.True(t, tr.IsEmpty())
	assert.Equal(t, 0, tr.ItemCount())
	assert.Equal(t, 0.0, tr.Total())
	assert.Equal(t, uint32(0), tr.TotalCents())
	assert.Equal(t, "No items", tr.SettlementDescription())
	assert.Equal(t, "Empty transaction", tr.CompactSummary())
	assert.Equal(t, "No items dispensed", tr.Summary())
}

// TestTrackerAddItem 测试追加记录
func TestTrackerAddItem(t *testing.T) {
	tr := NewTracker()
	tr.AddItem(handSoap, 2.5, 0.38)

	assert.False(t, tr.IsEmpty())
	assert.Equal(t, 1, tr.ItemCount())
	assert.Equal(t, 0.38, tr.Total())
	assert.Equal(t, uint32(38), tr.TotalCents())

	items := tr.Items()
	assert.Equal(t, "soap_hand", items[0].ProductID)
	assert.Equal(t, 2.5, items[0].Quantity)
	assert.Equal(t, 0.38, items[0].Price)
}

// TestTrackerRoundingStability 测试逐项取整的累计稳定性
func TestTrackerRoundingStability(t *testing.T) {
	tr := NewTracker()
	tr.AddItem(handSoap, 1.0, 0.33)
	tr.AddItem(laundrySoap, 1.0, 0.33)
	tr.AddItem(dishSoap, 1.0, 0.34)

	assert.Equal(t, 1.00, tr.Total())
	assert.Equal(t, uint32(100), tr.TotalCents())
}

// TestTrackerTwoProducts 测试两个商品合计
func TestTrackerTwoProducts(t *testing.T) {
	tr := NewTracker()
	tr.AddItem(handSoap, 2.5, handSoap.CalculatePrice(2.5))       // 0.38
	tr.AddItem(laundrySoap, 3.2, laundrySoap.CalculatePrice(3.2)) // 0.38

	assert.Equal(t, 0.76, tr.Total())
	assert.Equal(t, 2, tr.ItemCount())

	summary := tr.Summary()
	assert.Contains(t, summary, "Hand Soap")
	assert.Contains(t, summary, "Laundry Detergent")
	assert.Contains(t, summary, "$0.76")
}

// TestSettlementDescriptionSingle 测试单品结算描述
func TestSettlementDescriptionSingle(t *testing.T) {
	tr := NewTracker()
	tr.AddItem(handSoap, 2.5, 0.38)

	desc := tr.SettlementDescription()
	assert.Equal(t, "2.50 oz hand soap", desc)
	assert.LessOrEqual(t, len(desc), 30)
}

// TestSettlementDescriptionMulti 测试多品结算描述
func TestSettlementDescriptionMulti(t *testing.T) {
	tr := NewTracker()
	tr.AddItem(handSoap, 2.5, 0.38)
	tr.AddItem(laundrySoap, 3.2, 0.38)

	assert.Equal(t, "2 items: Hand, Laundry", tr.SettlementDescription())

	tr.AddItem(dishSoap, 1.0, 0.10)
	desc := tr.SettlementDescription()
	assert.Equal(t, "3 items: Hand, Laundry...", desc)
	assert.LessOrEqual(t, len(desc), 30)
}

// TestSettlementDescriptionTruncation 测试描述30字节截断
func TestSettlementDescriptionTruncation(t *testing.T) {
	long := &product.Product{
		ID: "p1", Name: "Extraordinarily Long Product Name", PricePerUnit: 0.10, Unit: "ounces",
		MotorPin: 1, FlowSensorPin: 2, ButtonPin: 3, PulsesPerUnit: 10,
	}

	tr := NewTracker()
	tr.AddItem(long, 123.45, 12.35)
	assert.LessOrEqual(t, len(tr.SettlementDescription()), 30)

	tr.AddItem(handSoap, 1.0, 0.15)
	tr.AddItem(laundrySoap, 1.0, 0.12)
	desc := tr.SettlementDescription()
	assert.LessOrEqual(t, len(desc), 30)
	assert.True(t, strings.HasPrefix(desc, "3 items:"))
}

// TestTrackerReset 测试清空交易
func TestTrackerReset(t *testing.T) {
	tr := NewTracker()
	tr.AddItem(handSoap, 2.5, 0.38)
	tr.Reset()

	assert.True(t, tr.IsEmpty())
	assert.Equal(t, 0.0, tr.Total())
}

// TestCompactSummary 测试单行摘要
func TestCompactSummary(t *testing.T) {
	tr := NewTracker()
	tr.AddItem(handSoap, 2.5, 0.38)
	assert.Equal(t, "1 item, $0.38", tr.CompactSummary())

	tr.AddItem(laundrySoap, 3.2, 0.38)
	assert.Equal(t, "2 items, $0.76", tr.CompactSummary())
}
