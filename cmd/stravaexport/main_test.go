package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/digitaldrywood/stravaexport/internal/logging"
)

type countingCore struct {
	zapcore.Core
	syncs atomic.Int32
}

func (c *countingCore) Sync() error {
	c.syncs.Add(1)
	return nil
}

func TestRunSyncsLoggerOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(path, []byte(`[ApiInfo]
client_id = 1
client_secret = secret
redirect_uri = http://127.0.0.1:8000/authorization
scope = read
`), 0600))

	core := &countingCore{Core: zapcore.NewNopCore()}
	newLogger = func(logging.Options) (*zap.Logger, error) {
		return zap.New(core), nil
	}
	logger = nil
	t.Cleanup(func() {
		newLogger = logging.New
		logger = nil
	})

	err := run(context.Background(), []string{"--config", path, "download", "--after", "yesterday"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")
	assert.Equal(t, int32(1), core.syncs.Load())
}
