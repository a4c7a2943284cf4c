package hardware

import (
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"github.com/wfunc/soap-vend/internal/errors"
	"github.com/wfunc/soap-vend/internal/logger"
	"go.uber.org/zap"
)

// edgePollInterval 边沿检测轮询间隔
const edgePollInterval = 5 * time.Millisecond

// RPIODriver 树莓派GPIO驱动
// go-rpio不提供中断回调，用后台轮询EdgeDetected模拟边沿事件
type RPIODriver struct {
	mu       sync.Mutex
	logger   *zap.Logger
	inputs   map[int]bool
	outputs  map[int]bool
	watchers map[int]*rpioWatcher
	stopCh   chan struct{}
	wg       sync.WaitGroup
	closed   bool
}

// rpioWatcher 单引脚边沿监听状态
type rpioWatcher struct {
	bounce   time.Duration
	fn       func(pin int)
	lastFire time.Time
}

// NewRPIODriver 创建并初始化GPIO驱动
func NewRPIODriver() (*RPIODriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, errors.Wrap(err, errors.ErrHardwareFatal, "GPIO初始化失败")
	}

	d := &RPIODriver{
		logger:   logger.GetModuleLogger("hardware"),
		inputs:   make(map[int]bool),
		outputs:  make(map[int]bool),
		watchers: make(map[int]*rpioWatcher),
		stopCh:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.edgeLoop()

	d.logger.Info("GPIO驱动已初始化")
	return d, nil
}

// SetupInput 配置输入引脚（上拉）
func (d *RPIODriver) SetupInput(pin int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := rpio.Pin(pin)
	p.Input()
	p.PullUp()
	d.inputs[pin] = true
	return nil
}

// SetupOutput 配置输出引脚，初始低电平
func (d *RPIODriver) SetupOutput(pin int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	d.outputs[pin] = true
	return nil
}

// Read 读取引脚电平
func (d *RPIODriver) Read(pin int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false, errors.New(errors.ErrChannelRead, "GPIO已关闭")
	}
	if !d.inputs[pin] && !d.outputs[pin] {
		return false, errors.Newf(errors.ErrChannelRead, "引脚%d未配置", pin)
	}
	return rpio.Pin(pin).Read() == rpio.High, nil
}

// Write 写引脚电平
func (d *RPIODriver) Write(pin int, high bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New(errors.ErrChannelWrite, "GPIO已关闭")
	}
	if !d.outputs[pin] {
		return errors.Newf(errors.ErrChannelWrite, "引脚%d不是输出引脚", pin)
	}
	if high {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
	return nil
}

// WatchFalling 注册下降沿回调
func (d *RPIODriver) WatchFalling(pin int, bounce time.Duration, fn func(pin int)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inputs[pin] {
		return errors.Newf(errors.ErrSensorArm, "引脚%d不是输入引脚", pin)
	}
	p := rpio.Pin(pin)
	p.Detect(rpio.FallEdge)
	p.EdgeDetected() // 清除残留的边沿标志
	d.watchers[pin] = &rpioWatcher{bounce: bounce, fn: fn}
	return nil
}

// Unwatch 取消边沿监听
func (d *RPIODriver) Unwatch(pin int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.watchers[pin]; ok {
		rpio.Pin(pin).Detect(rpio.NoEdge)
		delete(d.watchers, pin)
	}
}

// Cleanup 复位输出引脚并释放GPIO
func (d *RPIODriver) Cleanup() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for pin := range d.watchers {
		rpio.Pin(pin).Detect(rpio.NoEdge)
	}
	d.watchers = make(map[int]*rpioWatcher)
	for pin := range d.outputs {
		rpio.Pin(pin).Low()
	}
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()

	if err := rpio.Close(); err != nil {
		return errors.Wrap(err, errors.ErrHardwareFatal, "GPIO释放失败")
	}
	d.logger.Info("GPIO驱动已释放")
	return nil
}

// edgeLoop 轮询边沿标志并分发回调
func (d *RPIODriver) edgeLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(edgePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.dispatchEdges()
		}
	}
}

// dispatchEdges 检查已注册引脚的边沿标志，按去抖窗口分发
func (d *RPIODriver) dispatchEdges() {
	type firing struct {
		pin int
		fn  func(pin int)
	}
	var pending []firing

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	now := time.Now()
	for pin, w := range d.watchers {
		if !rpio.Pin(pin).EdgeDetected() {
			continue
		}
		if w.bounce > 0 && !w.lastFire.IsZero() && now.Sub(w.lastFire) < w.bounce {
			continue
		}
		w.lastFire = now
		pending = append(pending, firing{pin: pin, fn: w.fn})
	}
	d.mu.Unlock()

	// 回调在锁外执行，允许回调方再进驱动
	for _, f := range pending {
		f.fn(f.pin)
	}
}
