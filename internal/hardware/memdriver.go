package hardware

import (
	"sync"
	"time"

	"github.com/wfunc/soap-vend/internal/errors"
)

// MemDriver 内存通道驱动（测试和调试模式用）
// 所有边沿事件由调用方同步触发，没有时序依赖
type MemDriver struct {
	mu       sync.Mutex
	inputs   map[int]bool // 输入引脚电平（上拉默认高电平）
	outputs  map[int]bool // 输出引脚电平
	watchers map[int]*memWatcher
	failPins map[int]bool // 注入读写失败的引脚
}

// memWatcher 下降沿监听配置
type memWatcher struct {
	bounce   time.Duration
	fn       func(pin int)
	lastFire time.Time
}

// NewMemDriver 创建内存驱动
func NewMemDriver() *MemDriver {
	return &MemDriver{
		inputs:   make(map[int]bool),
		outputs:  make(map[int]bool),
		watchers: make(map[int]*memWatcher),
		failPins: make(map[int]bool),
	}
}

// SetupInput 配置输入引脚，上拉默认高电平
func (d *MemDriver) SetupInput(pin int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputs[pin] = true
	return nil
}

// SetupOutput 配置输出引脚，初始低电平
func (d *MemDriver) SetupOutput(pin int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs[pin] = false
	return nil
}

// Read 读取引脚电平
func (d *MemDriver) Read(pin int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failPins[pin] {
		return false, errors.Newf(errors.ErrChannelRead, "引脚%d读取失败", pin)
	}
	if level, ok := d.inputs[pin]; ok {
		return level, nil
	}
	if level, ok := d.outputs[pin]; ok {
		return level, nil
	}
	return false, errors.Newf(errors.ErrChannelRead, "引脚%d未配置", pin)
}

// Write 写引脚电平
func (d *MemDriver) Write(pin int, high bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failPins[pin] {
		return errors.Newf(errors.ErrChannelWrite, "引脚%d写入失败", pin)
	}
	if _, ok := d.outputs[pin]; !ok {
		return errors.Newf(errors.ErrChannelWrite, "引脚%d不是输出引脚", pin)
	}
	d.outputs[pin] = high
	return nil
}

// WatchFalling 注册下降沿回调
func (d *MemDriver) WatchFalling(pin int, bounce time.Duration, fn func(pin int)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inputs[pin]; !ok {
		return errors.Newf(errors.ErrChannelRead, "引脚%d不是输入引脚", pin)
	}
	d.watchers[pin] = &memWatcher{bounce: bounce, fn: fn}
	return nil
}

// Unwatch 取消边沿监听
func (d *MemDriver) Unwatch(pin int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.watchers, pin)
}

// Cleanup 复位全部输出引脚并清除监听
func (d *MemDriver) Cleanup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for pin := range d.outputs {
		d.outputs[pin] = false
	}
	d.watchers = make(map[int]*memWatcher)
	return nil
}

// SetInput 设置输入引脚电平（测试辅助，不触发边沿）
func (d *MemDriver) SetInput(pin int, high bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputs[pin] = high
}

// FireFalling 模拟一次下降沿（同步执行回调，受去抖窗口约束）
func (d *MemDriver) FireFalling(pin int) {
	d.mu.Lock()
	d.inputs[pin] = false
	w, ok := d.watchers[pin]
	if !ok {
		d.mu.Unlock()
		return
	}
	now := time.Now()
	if w.bounce > 0 && !w.lastFire.IsZero() && now.Sub(w.lastFire) < w.bounce {
		d.mu.Unlock()
		return
	}
	w.lastFire = now
	fn := w.fn
	d.mu.Unlock()
	fn(pin)
}

// OutputLevel 读取输出引脚电平（测试辅助）
func (d *MemDriver) OutputLevel(pin int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outputs[pin]
}

// FailPin 注入引脚读写失败
func (d *MemDriver) FailPin(pin int, fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failPins[pin] = fail
}
