package product

import (
	"encoding/json"
	"os"

	"github.com/wfunc/soap-vend/internal/errors"
	"github.com/wfunc/soap-vend/internal/logger"
	"go.uber.org/zap"
)

// Catalog 商品目录
// 启动时加载并校验一次，进程生命周期内只读
type Catalog struct {
	products  []*Product
	byID      map[string]*Product
	byButton  map[int]*Product
	logger    *zap.Logger
}

// catalogFile products.json 文件结构
type catalogFile struct {
	Products []*Product `json:"products"`
}

// LoadCatalog 从JSON配置文件加载商品目录
func LoadCatalog(path string) (*Catalog, error) {
	log := logger.GetLogger()
	log.Info("加载商品目录", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "商品配置文件读取失败: %s", path)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "商品配置JSON解析失败")
	}

	catalog, err := NewCatalog(file.Products)
	if err != nil {
		return nil, err
	}

	log.Info("商品目录加载完成", zap.Int("count", catalog.Count()))
	return catalog, nil
}

// NewCatalog 从商品列表构建目录并校验
// 校验规则：每个商品自身合法；全目录内商品ID唯一；
// 电机/流量计/按钮三类通道互不重复
func NewCatalog(products []*Product) (*Catalog, error) {
	if len(products) == 0 {
		return nil, errors.New(errors.ErrCatalogInvalid, "至少需要配置一个商品")
	}

	c := &Catalog{
		products: make([]*Product, 0, len(products)),
		byID:     make(map[string]*Product, len(products)),
		byButton: make(map[int]*Product, len(products)),
		logger:   logger.GetLogger(),
	}

	usedMotorPins := make(map[int]string)
	usedFlowPins := make(map[int]string)
	usedButtonPins := make(map[int]string)

	for _, p := range products {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if p.Status == "" {
			p.Status = Available
		}

		if _, exists := c.byID[p.ID]; exists {
			return nil, errors.Newf(errors.ErrDuplicateID, "商品ID重复: %s", p.ID)
		}

		if owner, used := usedMotorPins[p.MotorPin]; used {
			return nil, errors.Newf(errors.ErrDuplicatePin,
				"商品 %s: 电机通道 %d 已被商品 %s 占用", p.ID, p.MotorPin, owner)
		}
		if owner, used := usedFlowPins[p.FlowSensorPin]; used {
			return nil, errors.Newf(errors.ErrDuplicatePin,
				"商品 %s: 流量计通道 %d 已被商品 %s 占用", p.ID, p.FlowSensorPin, owner)
		}
		if owner, used := usedButtonPins[p.ButtonPin]; used {
			return nil, errors.Newf(errors.ErrDuplicatePin,
				"商品 %s: 按钮通道 %d 已被商品 %s 占用", p.ID, p.ButtonPin, owner)
		}

		usedMotorPins[p.MotorPin] = p.ID
		usedFlowPins[p.FlowSensorPin] = p.ID
		usedButtonPins[p.ButtonPin] = p.ID

		c.products = append(c.products, p)
		c.byID[p.ID] = p
		c.byButton[p.ButtonPin] = p

		c.logger.Info("商品已加载",
			zap.String("id", p.ID),
			zap.String("name", p.Name),
			zap.Float64("price_per_unit", p.PricePerUnit),
			zap.String("unit", p.Unit),
			zap.Bool("disabled", p.Disabled()))
	}

	return c, nil
}

// Get 按ID查找商品
func (c *Catalog) Get(id string) (*Product, error) {
	p, ok := c.byID[id]
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "商品不存在: %s", id)
	}
	return p, nil
}

// ByButtonPin 按选择按钮通道查找商品
func (c *Catalog) ByButtonPin(pin int) *Product {
	return c.byButton[pin]
}

// List 返回全部商品（保持配置文件顺序）
func (c *Catalog) List() []*Product {
	out := make([]*Product, len(c.products))
	copy(out, c.products)
	return out
}

// Count 商品总数
func (c *Catalog) Count() int {
	return len(c.products)
}
