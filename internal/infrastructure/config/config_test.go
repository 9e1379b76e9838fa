package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: mysql
  host: db.internal
  password: secret
events:
  driver: kafka
  kafka:
    brokers: ["k1:9092", "k2:9092"]
    topic: stock
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, ":9090", cfg.Server.Addr())
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Contains(t, cfg.Database.DSN(), "root:secret@tcp(db.internal:3306)/stockledger?charset=utf8mb4")
	assert.Contains(t, cfg.Database.DSN(), "innodb_lock_wait_timeout=5")

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Kafka.Brokers)
	assert.Equal(t, "stock", cfg.Events.Kafka.Topic)

	// 未配置的段使用默认值
	assert.Equal(t, 5*time.Second, cfg.Ledger.OperationTimeout)
	assert.Equal(t, 14*24*time.Hour, cfg.Ledger.RestockInterval())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	t.Setenv("STOCKLEDGER_SERVER_PORT", "7070")
	t.Setenv("STOCKLEDGER_DATABASE_SQLITE_PATH", "/tmp/ledger.db")
	t.Setenv("STOCKLEDGER_LEDGER_OPERATION_TIMEOUT", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/ledger.db", cfg.Database.SQLitePath)
	assert.Equal(t, 250*time.Millisecond, cfg.Ledger.OperationTimeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"端口非法", "server:\n  port: 70000\n"},
		{"未知数据库驱动", "database:\n  driver: oracle\n"},
		{"未知事件驱动", "events:\n  driver: nats\n"},
		{"采样率越界", "tracing:\n  sample_ratio: 2\n"},
		{"补货周期为0", "ledger:\n  restock_interval_days: 0\n"},
		{"生产环境默认密钥", "server:\n  mode: release\n"},
		{"异步队列为0", "events:\n  async: true\n  buffer_size: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}
