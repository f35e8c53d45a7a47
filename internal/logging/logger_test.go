package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cgraph.log")

	logger, err := New(Config{Level: "debug", OutputFile: path, JSONFormat: true})
	require.NoError(t, err)
	defer Close()

	logger.WithField("file", "a.py").Debug("parsed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"file":"a.py"`)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestRotateIfNeeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cgraph.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 64)), 0644))

	err := rotateIfNeeded(Config{OutputFile: path, MaxSize: 10, MaxBackups: 3})
	require.NoError(t, err)

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
