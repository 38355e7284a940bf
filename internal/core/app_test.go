package core

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/catalog-importer/internal/config"
)

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	log, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	cfg.Log.Level = "loud"
	_, err = NewLogger(cfg)
	assert.Error(t, err)

	cfg.Log.Level = "info"
	cfg.Log.Format = "xml"
	_, err = NewLogger(cfg)
	assert.Error(t, err)
}

func TestNewWithConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "catalog.db")
	cfg.Storage.Local.Root = filepath.Join(dir, "storage")

	app, err := NewWithConfig(cfg)
	require.NoError(t, err)
	defer app.Close()

	assert.NoError(t, app.DB().Ping())
	assert.NotNil(t, app.Blob())
	assert.NotNil(t, app.Submitter())
	assert.NotNil(t, app.Orchestrator())
	assert.NotNil(t, app.NewPool())
	assert.Len(t, app.JobManager().GetStatus(), 2)

	var n int
	require.NoError(t, app.DB().QueryRow("SELECT COUNT(*) FROM imports").Scan(&n))
	assert.Zero(t, n)
}

func TestNewWithConfigRejectsUnknownStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "catalog.db")
	cfg.Storage.Driver = "ftp"

	_, err := NewWithConfig(cfg)
	assert.Error(t, err)
}
