package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultLevelIsInfo(t *testing.T) {
	log := New(Options{})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNew_VerboseSetsDebugLevel(t *testing.T) {
	log := New(Options{Verbose: true})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestNew_FilePathRotatesToDisk(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "gate.log")

	log := New(Options{FilePath: logPath})
	log.Info("hello from the gate")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from the gate")
}
