package hardware

import (
	"time"
)

// PinDriver GPIO通道驱动能力接口
// 真实环境由RPIODriver实现，测试环境由MemDriver实现
type PinDriver interface {
	// SetupInput 配置输入引脚（上拉）
	SetupInput(pin int) error
	// SetupOutput 配置输出引脚
	SetupOutput(pin int) error
	// Read 读取引脚电平（true=高电平）
	Read(pin int) (bool, error)
	// Write 写引脚电平
	Write(pin int, high bool) error
	// WatchFalling 注册下降沿回调（bounce为硬件去抖窗口，0表示不去抖）
	WatchFalling(pin int, bounce time.Duration, fn func(pin int)) error
	// Unwatch 取消引脚的边沿监听
	Unwatch(pin int)
	// Cleanup 释放全部引脚资源
	Cleanup() error
}
