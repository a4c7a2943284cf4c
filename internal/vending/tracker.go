package vending

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/soap-vend/internal/eport"
	"github.com/wfunc/soap-vend/internal/product"
)

// LineItem 一条出水记录，追加后不可变
type LineItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Price       float64 `json:"price"`
}

// Tracker 单次会话的交易累计器
// 逐项累加并在每次追加后取整，保证累计取整方式与终端一致；
// 流量回调会并发读取总额，内部加锁
type Tracker struct {
	mu        sync.Mutex
	items     []LineItem
	total     float64
	startTime time.Time
}

// NewTracker 创建空交易
func NewTracker() *Tracker {
	return &Tracker{startTime: time.Now()}
}

// AddItem 追加一条出水记录，数量和价格在此时取两位小数
func (t *Tracker) AddItem(p *product.Product, quantity, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, LineItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    product.Round2(quantity),
		Unit:        p.Unit,
		Price:       product.Round2(price),
	})
	// 累计值每次追加后取整，不做一次性重算
	t.total = product.Round2(t.total + price)
}

// Total 交易总额（元）
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return product.Round2(t.total)
}

// TotalCents 交易总额（分）
func (t *Tracker) TotalCents() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint32(math.Round(t.total * 100))
}

// Items 返回记录副本
func (t *Tracker) Items() []LineItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LineItem, len(t.items))
	copy(out, t.items)
	return out
}

// ItemCount 记录条数
func (t *Tracker) ItemCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// IsEmpty 判断交易是否为空
func (t *Tracker) IsEmpty() bool {
	return t.ItemCount() == 0
}

// StartTime 会话开始时间
func (t *Tracker) StartTime() time.Time {
	return t.startTime
}

// Summary 多行交易明细（日志用）
func (t *Tracker) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.items) == 0 {
		return "No items dispensed"
	}

	var b strings.Builder
	b.WriteString("TRANSACTION SUMMARY\n")
	b.WriteString(strings.Repeat("-", 40))
	b.WriteByte('\n')
	for _, item := range t.items {
		fmt.Fprintf(&b, "%s: %.2f %s - $%.2f\n", item.ProductName, item.Quantity, item.Unit, item.Price)
	}
	b.WriteString(strings.Repeat("-", 40))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "TOTAL: $%.2f", t.total)
	return b.String()
}

// CompactSummary 单行摘要（显示用）
func (t *Tracker) CompactSummary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.items) == 0 {
		return "Empty transaction"
	}
	word := "items"
	if len(t.items) == 1 {
		word = "item"
	}
	return fmt.Sprintf("%d %s, $%.2f", len(t.items), word, t.total)
}

// SettlementDescription 结算描述，不超过30字节
// 单品格式 "2.50 oz hand soap"，多品格式 "3 items: Hand, Laundry..."
func (t *Tracker) SettlementDescription() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.items) == 0 {
		return "No items"
	}

	var desc string
	if len(t.items) == 1 {
		item := t.items[0]
		desc = fmt.Sprintf("%.2f %s %s", item.Quantity, item.Unit, strings.ToLower(item.ProductName))
	} else {
		names := make([]string, 0, 2)
		for _, item := range t.items[:2] {
			names = append(names, strings.Fields(item.ProductName)[0])
		}
		joined := strings.Join(names, ", ")
		if len(t.items) > 2 {
			joined += "..."
		}
		desc = fmt.Sprintf("%d items: %s", len(t.items), joined)
	}

	if len(desc) > eport.MaxDescriptionLen {
		desc = desc[:eport.MaxDescriptionLen]
	}
	return desc
}

// Reset 清空交易，供下一位顾客使用
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = nil
	t.total = 0
	t.startTime = time.Now()
}

// String 实现Stringer
func (t *Tracker) String() string {
	return t.CompactSummary()
}
