package config

import "path/filepath"

func Defaults() *Config {
	dataDir := DefaultConfigDir()
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
			DataDir:  dataDir,
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(dataDir, "deskbot.db"),
		},
		Telegram: TelegramConfig{
			Enabled:   false,
			ParseMode: "Markdown",
		},
		Engine: EngineConfig{
			SessionTTLMinutes:  30,
			SweepIntervalSec:   60,
			DedupeInbound:      true,
			DedupeWindowSec:    600,
			BusBufferSize:      100,
			RefreshIntervalSec: 30,
		},
		Flows: FlowsConfig{
			Dir:          filepath.Join(dataDir, "flows"),
			OnDeactivate: "finish",
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
		},
	}
}
