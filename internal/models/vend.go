package models

import "time"

// VendTransaction 售卖会话记录表
type VendTransaction struct {
	BaseModel
	SessionID    string         `gorm:"uniqueIndex;size:64;not null" json:"session_id"`
	TerminalTxID string         `gorm:"size:64;index" json:"terminal_tx_id"`
	Outcome      string         `gorm:"size:20;index" json:"outcome"` // complete, cancelled, failed
	ItemCount    int            `gorm:"default:0" json:"item_count"`
	TotalCents   int64          `gorm:"default:0" json:"total_cents"`
	Total        float64        `gorm:"default:0" json:"total"`
	Extra        JSONMap        `gorm:"type:json" json:"extra"`
	Items        []VendLineItem `gorm:"foreignKey:TransactionID" json:"items"`
}

// VendLineItem 售卖明细表，每个产品一行
type VendLineItem struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID uint      `gorm:"not null;index" json:"transaction_id"`
	ProductID     string    `gorm:"size:64;not null" json:"product_id"`
	ProductName   string    `gorm:"size:100" json:"product_name"`
	Quantity      float64   `gorm:"default:0" json:"quantity"`
	Unit          string    `gorm:"size:16" json:"unit"`
	Price         float64   `gorm:"default:0" json:"price"`
	CreatedAt     time.Time `json:"created_at"`
}
