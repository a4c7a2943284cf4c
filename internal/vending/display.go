package vending

import (
	"github.com/wfunc/soap-vend/internal/product"
)

// 显示端状态名
const (
	StateIdle        = "idle"
	StateAuthorizing = "authorizing"
	StateReady       = "ready"
	StateDispensing  = "dispensing"
	StateWaiting     = "waiting"
	StateDeclined    = "declined"
	StateComplete    = "complete"
	StateError       = "error"
)

// Display 顾客显示端通知接口
// 所有方法必须立即返回，核心流程从不等待显示端确认
type Display interface {
	ChangeState(state string)
	LoadProducts(products []*product.Product)
	UpdateProduct(p *product.Product, quantity, price float64, active bool)
	UpdateTotal(total float64)
	UpdateTimer(secondsRemaining int, warning bool)
	ShowReceipt(items []LineItem, subtotal, tax, total float64, timestamp string)
	ShowError(message, code string)
}

// NopDisplay 空显示端（显示功能关闭时使用）
type NopDisplay struct{}

func (NopDisplay) ChangeState(string)                                  {}
func (NopDisplay) LoadProducts([]*product.Product)                     {}
func (NopDisplay) UpdateProduct(*product.Product, float64, float64, bool) {}
func (NopDisplay) UpdateTotal(float64)                                 {}
func (NopDisplay) UpdateTimer(int, bool)                               {}
func (NopDisplay) ShowReceipt([]LineItem, float64, float64, float64, string) {}
func (NopDisplay) ShowError(string, string)                            {}
