package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM payments":                        "SELECT",
		"  insert into ledger_entries (id) values (1)":  "INSERT",
		"WITH batch AS (SELECT 1) UPDATE outbox_events": "SELECT",
		"":            "UNKNOWN",
		"VACUUM full": "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}

func TestGormLoggerTraceLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(GormLoggerConfig{
		Level:                gormlogger.Warn,
		SlowThreshold:        time.Millisecond,
		IgnoreRecordNotFound: true,
		Base:                 zap.New(core),
	})

	sqlFn := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(context.Background(), time.Now(), sqlFn, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now(), sqlFn, errors.New("boom"))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	l.Trace(context.Background(), time.Now().Add(-time.Second), sqlFn, nil)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), sqlFn, errors.New("ignored"))
	assert.Equal(t, 2, logs.Len())
}

func TestParamsFilterDropsValues(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())
	sql, params := l.ParamsFilter(context.Background(), "SELECT ? ", "secret")
	assert.Equal(t, "SELECT ? ", sql)
	assert.Nil(t, params)
}
