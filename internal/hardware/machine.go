package hardware

import (
	"sync"
	"time"

	"github.com/wfunc/soap-vend/internal/config"
	"github.com/wfunc/soap-vend/internal/errors"
	"github.com/wfunc/soap-vend/internal/logger"
	"github.com/wfunc/soap-vend/internal/product"
	"go.uber.org/zap"
)

// FlowUpdateFunc 流量脉冲回调（携带最新数量和价格）
type FlowUpdateFunc func(p *product.Product, quantity, price float64)

// ProductSwitchFunc 商品切换回调
// 在出水计数清零之前调用，回调方可在此时读取上一商品的累计数量
type ProductSwitchFunc func(next *product.Product)

// Machine 售货机硬件控制器
// 管理全部商品的电机、流量传感器和按钮，串行化中断回调与轮询读取
type Machine struct {
	mu      sync.Mutex
	driver  PinDriver
	catalog *product.Catalog
	cfg     *config.MachineConfig
	logger  *zap.Logger

	// 出水状态（一个原子更新单元，必须整体加锁读写）
	pulseCount uint64
	quantity   float64
	price      float64
	selected   *product.Product

	onFlow    FlowUpdateFunc
	onSwitch  ProductSwitchFunc
	doneArmed bool
}

// NewMachine 创建硬件控制器并初始化全部引脚
func NewMachine(driver PinDriver, catalog *product.Catalog, cfg *config.MachineConfig) (*Machine, error) {
	m := &Machine{
		driver:  driver,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger.GetModuleLogger("hardware"),
	}

	for _, p := range catalog.List() {
		if err := driver.SetupOutput(p.MotorPin); err != nil {
			return nil, errors.Wrapf(err, errors.ErrHardwareFatal, "商品%s电机引脚初始化失败", p.ID)
		}
		if err := driver.Write(p.MotorPin, false); err != nil {
			return nil, errors.Wrapf(err, errors.ErrHardwareFatal, "商品%s电机关闭失败", p.ID)
		}
		if err := driver.SetupInput(p.FlowSensorPin); err != nil {
			return nil, errors.Wrapf(err, errors.ErrHardwareFatal, "商品%s流量引脚初始化失败", p.ID)
		}
		if err := driver.SetupInput(p.ButtonPin); err != nil {
			return nil, errors.Wrapf(err, errors.ErrHardwareFatal, "商品%s按钮引脚初始化失败", p.ID)
		}
	}
	if err := driver.SetupInput(cfg.DoneButtonPin); err != nil {
		return nil, errors.Wrap(err, errors.ErrHardwareFatal, "完成按钮引脚初始化失败")
	}

	m.logger.Info("硬件控制器已初始化",
		zap.Int("products", catalog.Count()),
		zap.Int("done_button_pin", cfg.DoneButtonPin))
	return m, nil
}

// SetFlowCallback 注册流量脉冲回调
func (m *Machine) SetFlowCallback(fn FlowUpdateFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFlow = fn
}

// SetSwitchCallback 注册商品切换回调
func (m *Machine) SetSwitchCallback(fn ProductSwitchFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSwitch = fn
}

// SelectProduct 切换当前商品
// 已选中同一商品时不做任何事并返回false；否则先关上一商品的电机、
// 触发切换回调（此时计数尚未清零），再整体换入新商品并清零计数
func (m *Machine) SelectProduct(p *product.Product) bool {
	m.mu.Lock()
	if m.selected != nil && m.selected.ID == p.ID {
		m.mu.Unlock()
		return false
	}
	prev := m.selected
	if prev != nil {
		if err := m.driver.Write(prev.MotorPin, false); err != nil {
			m.logger.Warn("切换时关闭电机失败", zap.String("product", prev.ID), zap.Error(err))
		}
		m.driver.Unwatch(prev.FlowSensorPin)
	}
	onSwitch := m.onSwitch
	m.mu.Unlock()

	// 回调在锁外执行，回调方此刻仍能读到上一商品的累计值
	if onSwitch != nil {
		onSwitch(p)
	}

	m.mu.Lock()
	m.selected = p
	m.pulseCount = 0
	m.quantity = 0
	m.price = 0
	m.mu.Unlock()

	if err := m.driver.WatchFalling(p.FlowSensorPin, 0, func(int) {
		m.RecordFlowPulse()
	}); err != nil {
		m.logger.Error("流量传感器注册失败", zap.String("product", p.ID), zap.Error(err))
	}

	m.logger.Info("已切换商品", zap.String("product", p.ID), zap.String("name", p.Name))
	return true
}

// RecordFlowPulse 记录一个流量脉冲
// 未选中商品时忽略（防止切换窗口期的散杂脉冲）
func (m *Machine) RecordFlowPulse() {
	m.mu.Lock()
	if m.selected == nil {
		m.mu.Unlock()
		return
	}
	m.pulseCount++
	m.quantity = m.selected.QuantityForPulses(m.pulseCount)
	m.price = m.selected.CalculatePrice(m.quantity)
	p, q, pr := m.selected, m.quantity, m.price
	fn := m.onFlow
	m.mu.Unlock()

	if fn != nil {
		fn(p, q, pr)
	}
}

// SetMotor 开关当前商品的电机（未选中商品时不做任何事）
func (m *Machine) SetMotor(on bool) error {
	m.mu.Lock()
	p := m.selected
	m.mu.Unlock()
	if p == nil {
		return nil
	}
	if err := m.driver.Write(p.MotorPin, on); err != nil {
		return errors.Wrapf(err, errors.ErrMotorControl, "商品%s电机控制失败", p.ID)
	}
	return nil
}

// IsSelectPressed 读取某商品的选择按钮（上拉接法，低电平为按下）
func (m *Machine) IsSelectPressed(p *product.Product) (bool, error) {
	level, err := m.driver.Read(p.ButtonPin)
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrChannelRead, "商品%s按钮读取失败", p.ID)
	}
	return !level, nil
}

// PressedProduct 返回按目录顺序第一个被按下的商品，没有则返回nil
func (m *Machine) PressedProduct() (*product.Product, error) {
	for _, p := range m.catalog.List() {
		pressed, err := m.IsSelectPressed(p)
		if err != nil {
			return nil, err
		}
		if pressed {
			return p, nil
		}
	}
	return nil, nil
}

// IsDonePressed 读取完成按钮状态
func (m *Machine) IsDonePressed() (bool, error) {
	level, err := m.driver.Read(m.cfg.DoneButtonPin)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrChannelRead, "完成按钮读取失败")
	}
	return !level, nil
}

// ArmDoneButton 注册完成按钮回调
// 两级去抖：驱动层按DoneBounceTime做硬件去抖，触发后再等DoneSoftwareSettle
// 复读一次引脚，仍为按下状态才认定有效，否则按噪声丢弃
func (m *Machine) ArmDoneButton(onPress func()) error {
	err := m.driver.WatchFalling(m.cfg.DoneButtonPin, m.cfg.DoneBounceTime, func(pin int) {
		time.Sleep(m.cfg.DoneSoftwareSettle)
		pressed, rerr := m.IsDonePressed()
		if rerr != nil {
			m.logger.Warn("完成按钮复读失败", zap.Error(rerr))
			return
		}
		if !pressed {
			m.logger.Debug("完成按钮噪声已丢弃")
			return
		}
		onPress()
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrSensorArm, "完成按钮注册失败")
	}

	m.mu.Lock()
	m.doneArmed = true
	m.mu.Unlock()
	return nil
}

// DispenseInfo 快照读取当前出水数量和价格
func (m *Machine) DispenseInfo() (quantity, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quantity, m.price
}

// SelectedProduct 返回当前选中的商品（可能为nil）
func (m *Machine) SelectedProduct() *product.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// PulseCount 返回当前脉冲计数
func (m *Machine) PulseCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pulseCount
}

// Reset 复位全部出水状态
// 关闭所有电机、注销全部事件源、清空选中商品和回调；可重复调用
func (m *Machine) Reset() error {
	m.mu.Lock()
	m.selected = nil
	m.pulseCount = 0
	m.quantity = 0
	m.price = 0
	m.onFlow = nil
	m.onSwitch = nil
	doneArmed := m.doneArmed
	m.doneArmed = false
	m.mu.Unlock()

	var firstErr error
	for _, p := range m.catalog.List() {
		m.driver.Unwatch(p.FlowSensorPin)
		if err := m.driver.Write(p.MotorPin, false); err != nil {
			m.logger.Error("复位时关闭电机失败", zap.String("product", p.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = errors.Wrapf(err, errors.ErrMotorControl, "商品%s电机关闭失败", p.ID)
			}
		}
	}
	if doneArmed {
		m.driver.Unwatch(m.cfg.DoneButtonPin)
	}

	m.logger.Info("硬件状态已复位")
	return firstErr
}

// Cleanup 释放底层驱动资源
func (m *Machine) Cleanup() error {
	if err := m.Reset(); err != nil {
		m.logger.Warn("清理前复位失败", zap.Error(err))
	}
	return m.driver.Cleanup()
}
