package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"

	"github.com/BarkinBalci/dora-metrics-service/internal/config"
)

func TestOptions(t *testing.T) {
	opts := options(&config.ClickHouse{
		Host:               "clickhouse",
		Port:               "9000",
		DB:                 "dora",
		User:               "default",
		MaxOpenConns:       5,
		MaxIdleConns:       2,
		ConnMaxLifetimeSec: 3600,
	})

	assert.Equal(t, []string{"clickhouse:9000"}, opts.Addr)
	assert.Equal(t, "dora", opts.Auth.Database)
	assert.Equal(t, "default", opts.Auth.Username)
	assert.Nil(t, opts.TLS)
	assert.Equal(t, time.Hour, opts.ConnMaxLifetime)
	assert.Equal(t, clickhouse.CompressionLZ4, opts.Compression.Method)
}

func TestOptions_TLS(t *testing.T) {
	opts := options(&config.ClickHouse{Host: "::1", Port: "9440", UseTLS: true})

	assert.Equal(t, []string{"[::1]:9440"}, opts.Addr)
	assert.NotNil(t, opts.TLS)
}
