package tephra

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// LoadDeviceConfig reads a DeviceConfig from a TOML file, starting from
// DefaultDeviceConfig so an omitted field keeps its default rather than
// zeroing out (A.3).
func LoadDeviceConfig(path string) (DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DeviceConfig{}, err
	}
	cfg := DefaultDeviceConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return DeviceConfig{}, err
	}
	return cfg, nil
}
