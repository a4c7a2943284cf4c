package product

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/soap-vend/internal/errors"
)

// writeCatalogFile 写入临时商品配置文件
func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoadCatalog 测试从JSON文件加载
func TestLoadCatalog(t *testing.T) {
	path := writeCatalogFile(t, `{
		"products": [
			{
				"id": "soap_hand",
				"name": "Hand Soap",
				"price_per_unit": 0.15,
				"unit": "oz",
				"motor_pin": 17,
				"flow_sensor_pin": 24,
				"button_pin": 4,
				"pulses_per_unit": 5.4
			},
			{
				"id": "soap_laundry",
				"name": "Laundry Detergent",
				"price_per_unit": 0.12,
				"unit": "oz",
				"motor_pin": 22,
				"flow_sensor_pin": 23,
				"button_pin": 5,
				"pulses_per_unit": 4.8,
				"status": "OUT_OF_ORDER"
			}
		]
	}`)

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Count())

	hand, err := catalog.Get("soap_hand")
	require.NoError(t, err)
	assert.False(t, hand.Disabled())
	assert.Equal(t, Available, hand.Status)

	laundry, err := catalog.Get("soap_laundry")
	require.NoError(t, err)
	assert.True(t, laundry.Disabled())
}

// TestLoadCatalogMissingFile 测试文件不存在
func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog("/nonexistent/products.json")
	require.Error(t, err)
	assert.Equal(t, errors.ErrConfigLoad, errors.GetCode(err))
}

// TestLoadCatalogInvalidJSON 测试JSON格式错误
func TestLoadCatalogInvalidJSON(t *testing.T) {
	path := writeCatalogFile(t, `{"products": [`)
	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Equal(t, errors.ErrConfigParse, errors.GetCode(err))
}

// TestLoadCatalogNoProducts 测试空商品列表
func TestLoadCatalogNoProducts(t *testing.T) {
	path := writeCatalogFile(t, `{"products": []}`)
	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCatalogInvalid, errors.GetCode(err))
}
