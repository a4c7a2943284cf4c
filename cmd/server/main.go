package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/wfunc/soap-vend/internal/api"
	"github.com/wfunc/soap-vend/internal/config"
	"github.com/wfunc/soap-vend/internal/database"
	"github.com/wfunc/soap-vend/internal/display"
	"github.com/wfunc/soap-vend/internal/eport"
	"github.com/wfunc/soap-vend/internal/errors"
	"github.com/wfunc/soap-vend/internal/hardware"
	"github.com/wfunc/soap-vend/internal/logger"
	"github.com/wfunc/soap-vend/internal/product"
	"github.com/wfunc/soap-vend/internal/repository"
	"github.com/wfunc/soap-vend/internal/vending"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 关闭超时
const shutdownTimeout = 10 * time.Second

// Server 售货机控制器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	catalog    *product.Catalog
	terminal   *eport.Client
	driver     hardware.PinDriver
	machine    *hardware.Machine
	displaySrv *display.Server
	orch       *vending.Orchestrator

	// 关闭控制
	runErr chan error
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	setupSystem(&cfg.System)
	printStartInfo(cfg)

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("控制器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("控制器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("控制器已安全关闭")
}

// NewServer 创建控制器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		runErr: make(chan error, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 启动控制器
func (s *Server) Start() error {
	s.logger.Info("正在启动售货机控制器...",
		zap.String("version", Version),
		zap.Bool("mock_mode", s.cfg.Machine.MockMode),
	)

	if err := s.initComponents(); err != nil {
		return err
	}

	s.startServices()

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.cfg = newCfg
	})

	s.logger.Info("控制器启动成功",
		zap.String("serial", s.cfg.Serial.Port),
		zap.Int("products", s.catalog.Count()),
	)

	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	s.logger.Info("初始化组件...")

	// 商品目录
	catalog, err := product.LoadCatalog(s.cfg.Catalog.Path)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigLoad, "加载商品目录失败")
	}
	s.catalog = catalog

	// 数据库（可选）
	if s.cfg.Database.Enabled {
		if err := s.initDatabase(); err != nil {
			return err
		}
	}

	// 显示服务（可选）
	if s.cfg.Display.Enabled {
		s.displaySrv = display.NewServer(&s.cfg.Display)
	}

	// ePort支付终端
	terminal, err := eport.Open(&s.cfg.Serial)
	if err != nil {
		return errors.Wrap(err, errors.ErrSerialOpen, "打开支付终端失败")
	}
	s.terminal = terminal

	// 硬件驱动
	if s.cfg.Machine.MockMode {
		s.logger.Warn("模拟模式：使用内存GPIO驱动")
		s.driver = hardware.NewMemDriver()
	} else {
		driver, err := hardware.NewRPIODriver()
		if err != nil {
			return errors.Wrap(err, errors.ErrHardwareFatal, "初始化GPIO驱动失败")
		}
		s.driver = driver
	}

	machine, err := hardware.NewMachine(s.driver, s.catalog, &s.cfg.Machine)
	if err != nil {
		return err
	}
	s.machine = machine

	// 会话编排器
	opts := vending.Options{
		Terminal:   s.terminal,
		Machine:    s.machine,
		Catalog:    s.catalog,
		Payment:    &s.cfg.Payment,
		Session:    &s.cfg.Session,
		MachineCfg: &s.cfg.Machine,
		TaxRate:    s.cfg.Display.TaxRate,
	}
	if s.displaySrv != nil {
		opts.Display = s.displaySrv
	}
	if s.cfg.Database.Enabled {
		repo := repository.NewVendTransactionRepository(database.GetDB())
		opts.Recorder = repository.NewSessionRecorder(repo)

		// 对账API挂在显示端HTTP服务上
		if s.displaySrv != nil {
			s.displaySrv.Mount(api.NewTransactionAPI(repo).RegisterRoutes)
		}
	}
	if s.cfg.Session.LastTxLogFile != "" {
		opts.TxLog = vending.NewTxLog(s.cfg.Session.LastTxLogFile)
	}
	s.orch = vending.NewOrchestrator(opts)

	s.logger.Info("所有组件初始化完成")
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...")

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrConfigLoad, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrConfigLoad, "数据库迁移失败")
		}
	}

	s.logger.Info("数据库初始化完成")
	return nil
}

// startServices 启动服务
func (s *Server) startServices() {
	// 显示服务
	if s.displaySrv != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.displaySrv.Start(); err != nil {
				s.logger.Error("显示服务已退出", zap.Error(err))
			}
		}()
	}

	// 售货控制循环
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.orch.Run(s.ctx); err != nil {
			s.runErr <- err
		}
	}()

	s.logger.Info("所有服务启动完成")
}

// WaitForShutdown 等待关闭信号或不可恢复错误
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case err := <-s.runErr:
		s.logger.Error("售货控制循环不可恢复，开始关闭",
			zap.Int("code", int(errors.GetCode(err))),
			zap.Error(err))
	}
}

// Shutdown 优雅关闭控制器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭控制器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 取消主上下文，触发控制循环退出
	s.cancel()

	// 显示服务在控制循环停止后再关，确保最后的状态能推送出去
	if s.displaySrv != nil {
		if err := s.displaySrv.Stop(shutdownCtx); err != nil {
			s.logger.Error("关闭显示服务失败", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
	}

	if err := s.closeComponents(); err != nil {
		s.logger.Error("关闭组件失败", zap.Error(err))
		return err
	}

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}

	return nil
}

// closeComponents 关闭组件
func (s *Server) closeComponents() error {
	s.logger.Info("关闭组件...")

	// 先停电机、释放GPIO，再断开终端
	if s.machine != nil {
		if err := s.machine.Cleanup(); err != nil {
			s.logger.Error("释放硬件失败", zap.Error(err))
		}
	}

	if s.terminal != nil {
		if err := s.terminal.Close(); err != nil {
			s.logger.Error("关闭支付终端失败", zap.Error(err))
		}
	}

	if s.cfg.Database.Enabled {
		if err := database.Close(); err != nil {
			s.logger.Error("关闭数据库失败", zap.Error(err))
		}
	}

	s.logger.Info("所有组件已关闭")
	return nil
}

// setupSystem 设置系统参数
func setupSystem(cfg *config.SystemConfig) {
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			time.Local = loc
		}
	}

	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("皂液售货机控制器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("皂液售货机控制器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  soap-vend [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  SOAP_VEND_ENV          运行环境 (development/production/test)")
	fmt.Println("  SOAP_VEND_CONFIG       配置文件路径")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  soap-vend -config=/path/to/config.yaml")
	fmt.Println("  soap-vend -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════")
	fmt.Printf("皂液售货机控制器 | 版本: %s | PID: %d\n", Version, os.Getpid())
	fmt.Printf("串口: %s | 商品目录: %s\n", cfg.Serial.Port, cfg.Catalog.Path)
	fmt.Println("═══════════════════════════════════════════════")
}
