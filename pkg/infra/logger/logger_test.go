package logger_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/eventwish/fraudguard/pkg/infra/logger"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncFileWriter_CloseFlushesPendingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	w, err := logger.NewAsyncFileWriter(path, 1024)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := w.Write([]byte("line\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10, bytes.Count(data, []byte("line\n")))
	assert.Zero(t, w.Dropped())
}

func TestNewLogger_StdoutOnly(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	l, closer, err := logger.NewLogger(logger.Config{Level: "warn"})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
}

func TestNewLogger_RejectsPathOutsideLogDir(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	_, _, err := logger.NewLogger(logger.Config{File: "../escape.log"})
	assert.Error(t, err)
}

func TestConsoleHook(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&bytes.Buffer{})
	l.SetFormatter(&logrus.JSONFormatter{})
	l.AddHook(logger.NewConsoleHook(&buf))

	l.WithField("eventID", "e-1").Info("scored")
	assert.Contains(t, buf.String(), `"eventID":"e-1"`)
}
