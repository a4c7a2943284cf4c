package vending

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/soap-vend/internal/config"
	"github.com/wfunc/soap-vend/internal/eport"
	"github.com/wfunc/soap-vend/internal/errors"
	"github.com/wfunc/soap-vend/internal/hardware"
	"github.com/wfunc/soap-vend/internal/logger"
	"github.com/wfunc/soap-vend/internal/product"
	"go.uber.org/zap"
)

// Terminal ePort终端操作接口（*eport.Client实现）
type Terminal interface {
	Status() (eport.Status, error)
	Reset() error
	RequestAuthorization(amountCents uint32) error
	SendTransactionResult(lineItemCount, quantity, priceCents uint32, itemID, description string) error
	TransactionID() (string, error)
}

// MachineController 售货机硬件操作接口（*hardware.Machine实现）
type MachineController interface {
	SelectProduct(p *product.Product) bool
	SetFlowCallback(fn hardware.FlowUpdateFunc)
	SetSwitchCallback(fn hardware.ProductSwitchFunc)
	SetMotor(on bool) error
	PressedProduct() (*product.Product, error)
	IsDonePressed() (bool, error)
	ArmDoneButton(onPress func()) error
	DispenseInfo() (quantity, price float64)
	SelectedProduct() *product.Product
	Reset() error
}

// Recorder 会话结果持久化接口（可选）
type Recorder interface {
	RecordSession(sessionID string, items []LineItem, total float64, terminalTxID, outcome string) error
}

// 会话结果
const (
	OutcomeComplete  = "complete"  // 结算成功
	OutcomeCancelled = "cancelled" // 空交易或超限取消
	OutcomeFailed    = "failed"    // 结算或硬件失败
)

// Options 编排器依赖
type Options struct {
	Terminal   Terminal
	Machine    MachineController
	Catalog    *product.Catalog
	Display    Display  // nil时使用NopDisplay
	Recorder   Recorder // 可选
	TxLog      *TxLog   // 可选
	Payment    *config.PaymentConfig
	Session    *config.SessionConfig
	MachineCfg *config.MachineConfig
	TaxRate    float64
}

// Orchestrator 售货会话编排器
// 主循环轮询终端状态：禁用→复位+预授权；已授权→进入出水会话；
// 所有终端I/O都在本循环内串行执行
type Orchestrator struct {
	terminal Terminal
	machine  MachineController
	catalog  *product.Catalog
	display  Display
	recorder Recorder
	txLog    *TxLog
	payCfg   *config.PaymentConfig
	sessCfg  *config.SessionConfig
	machCfg  *config.MachineConfig
	taxRate  float64
	logger   *zap.Logger

	consecutiveErrs int
}

// NewOrchestrator 创建会话编排器
func NewOrchestrator(opts Options) *Orchestrator {
	display := opts.Display
	if display == nil {
		display = NopDisplay{}
	}
	return &Orchestrator{
		terminal: opts.Terminal,
		machine:  opts.Machine,
		catalog:  opts.Catalog,
		display:  display,
		recorder: opts.Recorder,
		txLog:    opts.TxLog,
		payCfg:   opts.Payment,
		sessCfg:  opts.Session,
		machCfg:  opts.MachineCfg,
		taxRate:  opts.TaxRate,
		logger:   logger.GetModuleLogger("session"),
	}
}

// Run 主控制循环，阻塞直到ctx取消或进入不可恢复状态
func (o *Orchestrator) Run(ctx context.Context) error {
	o.display.ChangeState(StateIdle)
	o.display.LoadProducts(o.catalog.List())
	o.logger.Info("售货控制循环已启动", zap.Int("products", o.catalog.Count()))

	for {
		if ctx.Err() != nil {
			o.logger.Info("售货控制循环已停止")
			return nil
		}

		status, err := o.terminal.Status()
		if err != nil || status.Code == eport.StatusUnknown {
			if err == nil {
				err = errors.Newf(errors.ErrProtocolResponse, "未识别的状态响应: %q", status.Raw)
			}
			o.consecutiveErrs++
			o.logger.Error("状态查询失败",
				zap.Int("consecutive_errors", o.consecutiveErrs),
				zap.Int("max", o.payCfg.MaxConsecutiveErrs),
				zap.Error(err))
			if o.consecutiveErrs >= o.payCfg.MaxConsecutiveErrs {
				o.display.ShowError("机器暂停服务，请联系商家", "E-TERMINAL")
				return errors.Newf(errors.ErrSessionFatal,
					"连续%d次状态查询失败", o.consecutiveErrs).WithCause(err)
			}
			if !o.sleep(ctx, o.payCfg.RetryBackoff) {
				return nil
			}
			continue
		}
		o.consecutiveErrs = 0

		switch status.Code {
		case eport.StatusDisabled:
			if err := o.authorize(ctx); err != nil {
				return err
			}
		case eport.StatusDeclined:
			o.handleDeclined(ctx)
		case eport.StatusAwaitingSettlement:
			// 终端已处于授权状态，直接进入出水会话
			if err := o.startSession(ctx); err != nil {
				return err
			}
		}

		if !o.sleep(ctx, o.payCfg.StatusPollInterval) {
			return nil
		}
	}
}

// authorize 复位终端并发起预授权，成功后按授权结果分流
func (o *Orchestrator) authorize(ctx context.Context) error {
	o.logger.Info("终端禁用，开始复位和预授权",
		zap.Int("amount_cents", o.payCfg.AuthAmountCents))
	o.display.ChangeState(StateAuthorizing)

	if err := o.retry(ctx, "终端复位", o.terminal.Reset); err != nil {
		o.logger.Error("终端复位失败，跳过预授权", zap.Error(err))
		o.display.ChangeState(StateIdle)
		return nil
	}
	if !o.sleep(ctx, o.payCfg.PostResetDelay) {
		return nil
	}

	if err := o.retry(ctx, "预授权请求", func() error {
		return o.terminal.RequestAuthorization(uint32(o.payCfg.AuthAmountCents))
	}); err != nil {
		o.logger.Error("预授权请求失败", zap.Error(err))
		o.display.ChangeState(StateIdle)
		return nil
	}

	if !o.sleep(ctx, o.payCfg.AuthStatusDelay) {
		return nil
	}
	status, err := o.terminal.Status()
	if err != nil {
		o.logger.Warn("预授权后状态查询失败", zap.Error(err))
		o.display.ChangeState(StateIdle)
		return nil
	}

	switch status.Code {
	case eport.StatusDeclined:
		o.handleDeclined(ctx)
	case eport.StatusAwaitingSettlement:
		return o.startSession(ctx)
	default:
		o.logger.Info("预授权状态待定", zap.String("status", status.Code.String()))
		o.display.ChangeState(StateIdle)
	}
	return nil
}

// handleDeclined 授权被拒：提示顾客并等待后回到空闲
func (o *Orchestrator) handleDeclined(ctx context.Context) {
	o.logger.Warn("授权被银行拒绝")
	o.display.ChangeState(StateDeclined)
	o.sleep(ctx, o.payCfg.DeclinedRetryDelay)
	o.display.ChangeState(StateIdle)
}

// startSession 运行出水会话并按错误类别决定是否终止主循环
func (o *Orchestrator) startSession(ctx context.Context) error {
	err := o.runSession(ctx)
	if err == nil {
		return nil
	}

	switch errors.GetCategory(err) {
	case errors.CategoryHardware:
		// 硬件不可恢复，停机待人工处理
		o.logger.Error("硬件故障，控制循环终止", zap.Error(err))
		o.display.ShowError("机器故障，请联系商家", "E-HARDWARE")
		return err
	case errors.CategorySettlement:
		// 已出水未结算是对账事故，必须显式告警，但不停机
		o.logger.Error("结算失败，已出水商品未能计费", zap.Error(err))
		o.display.ShowError("结算失败，请联系商家", "E-SETTLE")
		o.sleep(ctx, o.payCfg.DeclinedRetryDelay)
		o.display.ChangeState(StateIdle)
		return nil
	default:
		o.logger.Error("出水会话异常结束", zap.Error(err))
		o.display.ShowError("本次服务已取消", "E-SESSION")
		o.sleep(ctx, o.payCfg.DeclinedRetryDelay)
		o.display.ChangeState(StateIdle)
		return nil
	}
}

// runSession 出水会话循环
// 顾客按住商品按钮出水，按完成按钮（或超时合成的完成事件）进入结算；
// 无论成败，退出前必定复位硬件
func (o *Orchestrator) runSession(ctx context.Context) (err error) {
	sessionID := uuid.New().String()
	tracker := NewTracker()
	clock := NewSessionClock()

	log := o.logger.With(zap.String("session_id", sessionID))
	log.Info("授权通过，出水会话开始")
	logger.LogSessionEvent("session_start", sessionID, nil)

	// 会话所有退出路径都必须复位硬件
	defer func() {
		if rerr := o.machine.Reset(); rerr != nil {
			log.Error("会话退出时硬件复位失败", zap.Error(rerr))
			if err == nil {
				err = rerr
			}
		}
	}()

	var done atomic.Bool
	finish := func(reason string) {
		if done.CompareAndSwap(false, true) {
			log.Info("收到完成事件", zap.String("reason", reason))
		}
	}

	// 流量脉冲：刷新显示和活动时间戳
	o.machine.SetFlowCallback(func(p *product.Product, quantity, price float64) {
		clock.TouchActivity()
		o.display.UpdateProduct(p, quantity, price, true)
		o.display.UpdateTotal(product.Round2(tracker.Total() + price))
	})

	// 商品切换：先把上一商品的累计量入账，再让计数清零
	o.machine.SetSwitchCallback(func(next *product.Product) {
		prev := o.machine.SelectedProduct()
		if prev == nil {
			return
		}
		quantity, price := o.machine.DispenseInfo()
		if quantity <= 0 {
			return
		}
		tracker.AddItem(prev, quantity, price)
		log.Info("商品切换，上一商品已入账",
			zap.String("product", prev.ID),
			zap.Float64("quantity", quantity),
			zap.Float64("price", price))
		o.display.UpdateProduct(prev, quantity, price, false)
		o.display.UpdateTotal(tracker.Total())
	})

	if aerr := o.machine.ArmDoneButton(func() {
		clock.TouchButton()
		finish("done_button")
	}); aerr != nil {
		return aerr
	}

	o.display.ChangeState(StateReady)

	motorErrs := 0
	warned := false
	for !done.Load() {
		if ctx.Err() != nil {
			return errors.New(errors.ErrCanceled, "会话被中断")
		}

		// 超时判定全部走轮询，到期合成完成事件，与真实按键同一条结算路径
		if o.sessCfg.MaxSessionTime > 0 && clock.SessionElapsed() > o.sessCfg.MaxSessionTime {
			finish("max_session_timeout")
			break
		}
		idle := clock.IdleElapsed()
		if o.sessCfg.InactivityTimeout > 0 && idle > o.sessCfg.InactivityTimeout {
			finish("inactivity_timeout")
			break
		}
		if o.sessCfg.InactivityWarning > 0 && idle > o.sessCfg.InactivityWarning {
			remaining := int((o.sessCfg.InactivityTimeout - idle).Seconds())
			if remaining < 0 {
				remaining = 0
			}
			o.display.UpdateTimer(remaining, true)
			warned = true
		} else if warned {
			o.display.UpdateTimer(int(o.sessCfg.InactivityTimeout.Seconds()), false)
			warned = false
		}

		if merr := o.driveMotors(clock, log); merr != nil {
			motorErrs++
			log.Warn("电机控制失败",
				zap.Int("errors", motorErrs),
				zap.Int("max", o.machCfg.MaxMotorErrors),
				zap.Error(merr))
			if motorErrs >= o.machCfg.MaxMotorErrors {
				return errors.Wrap(merr, errors.ErrHardwareFatal, "电机控制连续失败")
			}
			o.sleep(ctx, o.machCfg.MotorErrorDelay)
			continue
		}
		motorErrs = 0

		// 轮询完成按钮，按住也算活动，防止顾客停留时误判超时
		if pressed, derr := o.machine.IsDonePressed(); derr == nil && pressed {
			clock.TouchButton()
		}

		o.sleep(ctx, o.machCfg.MotorLoopDelay)
	}

	return o.finalize(ctx, sessionID, tracker, log)
}

// driveMotors 单个轮询节拍内的按钮扫描和电机控制
func (o *Orchestrator) driveMotors(clock *SessionClock, log *zap.Logger) error {
	pressed, err := o.machine.PressedProduct()
	if err != nil {
		return err
	}

	if pressed == nil {
		// 松开按钮后延迟关电机，吸收按钮抖动造成的瞬断
		if clock.SinceButton() > o.machCfg.MotorOffDebounce {
			return o.machine.SetMotor(false)
		}
		return nil
	}

	if pressed.Disabled() {
		log.Debug("商品停售，忽略按钮", zap.String("product", pressed.ID))
		return nil
	}

	clock.TouchButton()
	current := o.machine.SelectedProduct()
	if current == nil || current.ID != pressed.ID {
		// 切换有最小间隔，防止顾客快速交替按键导致状态抖动
		if clock.SinceProductSwitch() < o.machCfg.ProductSwitchDelay {
			return nil
		}
		if o.machine.SelectProduct(pressed) {
			clock.TouchProductSwitch()
			o.display.ChangeState(StateDispensing)
			o.display.UpdateProduct(pressed, 0, 0, true)
		}
		return nil
	}

	return o.machine.SetMotor(true)
}

// finalize 结算路径：真实按键和超时合成的完成事件都汇聚到这里
func (o *Orchestrator) finalize(ctx context.Context, sessionID string, tracker *Tracker, log *zap.Logger) error {
	// 当前商品的在途累计量最后入账
	if current := o.machine.SelectedProduct(); current != nil {
		quantity, price := o.machine.DispenseInfo()
		if quantity > 0 {
			tracker.AddItem(current, quantity, price)
			o.display.UpdateProduct(current, quantity, price, false)
		}
	}

	if tracker.IsEmpty() {
		log.Info("空交易，取消本次会话")
		logger.LogSessionEvent("session_cancelled", sessionID, map[string]interface{}{"reason": "empty"})
		o.record(sessionID, tracker, "", OutcomeCancelled)
		o.display.ChangeState(StateIdle)
		return nil
	}

	if tracker.ItemCount() > o.sessCfg.MaxItems || tracker.Total() > o.sessCfg.MaxPrice {
		log.Error("交易超出限额，拒绝结算",
			zap.Int("items", tracker.ItemCount()),
			zap.Float64("total", tracker.Total()),
			zap.Int("max_items", o.sessCfg.MaxItems),
			zap.Float64("max_price", o.sessCfg.MaxPrice))
		logger.LogSessionEvent("session_refused", sessionID, map[string]interface{}{"summary": tracker.CompactSummary()})
		o.record(sessionID, tracker, "", OutcomeCancelled)
		o.display.ShowError("交易超出限额，已取消", "E-LIMIT")
		return nil
	}

	log.Info("开始结算",
		zap.Int("items", tracker.ItemCount()),
		zap.Uint32("total_cents", tracker.TotalCents()),
		zap.String("description", tracker.SettlementDescription()))
	o.display.ChangeState(StateWaiting)

	serr := o.retry(ctx, "结算发送", func() error {
		return o.terminal.SendTransactionResult(
			1,
			uint32(tracker.ItemCount()),
			tracker.TotalCents(),
			"1",
			tracker.SettlementDescription())
	})
	if serr != nil {
		logger.LogSessionEvent("settlement_failed", sessionID, map[string]interface{}{"summary": tracker.CompactSummary()})
		o.record(sessionID, tracker, "", OutcomeFailed)
		if o.txLog != nil {
			o.txLog.Record(sessionID, tracker, "", OutcomeFailed)
		}
		// 重新定性为结算错误，调用方据类别决定不停机但必须告警
		return errors.New(errors.ErrSettlementSend, "结算发送重试耗尽").WithCause(serr)
	}

	// 终端交易ID仅用于留痕，取不到不影响结算结果
	txID, terr := o.terminal.TransactionID()
	if terr != nil {
		log.Warn("交易ID查询失败", zap.Error(terr))
		txID = ""
	} else if txID != "" {
		log.Info("终端交易ID", zap.String("tx_id", txID))
	}

	subtotal := tracker.Total()
	tax := product.Round2(subtotal * o.taxRate)
	total := product.Round2(subtotal + tax)
	o.display.ShowReceipt(tracker.Items(), subtotal, tax, total,
		time.Now().Format("01/02/2006 03:04 PM MST"))

	log.Info("会话完成", zap.String("summary", tracker.CompactSummary()))
	logger.LogSessionEvent("session_complete", sessionID, map[string]interface{}{
		"summary": tracker.CompactSummary(),
		"tx_id":   txID,
	})
	o.record(sessionID, tracker, txID, OutcomeComplete)
	if o.txLog != nil {
		o.txLog.Record(sessionID, tracker, txID, OutcomeComplete)
	}
	return nil
}

// record 持久化会话结果（尽力而为）
func (o *Orchestrator) record(sessionID string, tracker *Tracker, txID, outcome string) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordSession(sessionID, tracker.Items(), tracker.Total(), txID, outcome); err != nil {
		o.logger.Warn("会话结果持久化失败",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// retry 终端写操作的有限重试，固定间隔
func (o *Orchestrator) retry(ctx context.Context, name string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= o.payCfg.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		o.logger.Warn("终端操作失败",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.payCfg.MaxRetries),
			zap.Error(lastErr))
		if attempt < o.payCfg.MaxRetries {
			if !o.sleep(ctx, o.payCfg.RetryBackoff) {
				break
			}
		}
	}
	return lastErr
}

// sleep 可被ctx打断的等待，返回false表示ctx已取消
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
