package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "clover-api", cfg.AppName)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, LockStrategyAdvisory, cfg.LockStrategy)
	assert.Equal(t, 5*time.Second, cfg.IdentifyLockTimeout)
	assert.Equal(t, []string{"GET", "POST"}, cfg.AllowMethods)
	assert.False(t, cfg.RedisEnabled())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("IDENTIFY_LOCK_TIMEOUT", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.IdentifyLockTimeout)
}

func TestLoad_MigrationVersion(t *testing.T) {
	t.Setenv("DB_MIGRATION_VERSION", "3")
	t.Setenv("EMAIL_NORMALIZERS", "trim,lower")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.DatabaseMigrationVersion)
	assert.Equal(t, []string{"trim", "lower"}, cfg.EmailNormalizers)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "port", key: "PORT", value: "abc"},
		{name: "lock timeout", key: "IDENTIFY_LOCK_TIMEOUT", value: "soon"},
		{name: "metrics flag", key: "METRICS_ENABLED", value: "maybe"},
		{name: "store driver", key: "STORE_DRIVER", value: "sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "postgres advisory", cfg: Config{StoreDriver: StoreDriverPostgres, LockStrategy: LockStrategyAdvisory}},
		{name: "postgres redis", cfg: Config{StoreDriver: StoreDriverPostgres, LockStrategy: LockStrategyRedis}},
		{name: "memory advisory", cfg: Config{StoreDriver: StoreDriverMemory, LockStrategy: LockStrategyAdvisory}},
		{name: "memory redis", cfg: Config{StoreDriver: StoreDriverMemory, LockStrategy: LockStrategyRedis}, wantErr: true},
		{name: "unknown driver", cfg: Config{StoreDriver: "mysql", LockStrategy: LockStrategyAdvisory}, wantErr: true},
		{name: "unknown strategy", cfg: Config{StoreDriver: StoreDriverPostgres, LockStrategy: "zookeeper"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := Config{DatabaseURL: "postgres://u:p@db:5432/clover"}
	assert.Equal(t, "postgres://u:p@db:5432/clover", cfg.DatabaseDSN())

	cfg = Config{
		DatabaseHost:                  "db",
		DatabasePort:                  "5432",
		DatabaseUserName:              "u",
		DatabasePassword:              "p",
		DatabaseName:                  "clover",
		DatabaseSSLMode:               "disable",
		DatabaseConnectTimeoutSeconds: 30,
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=clover sslmode=disable connect_timeout=30", cfg.DatabaseDSN())
}
