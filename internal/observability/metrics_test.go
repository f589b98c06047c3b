package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type widget struct {
	ID   uint
	Name string
}

func TestRegisterQueryMetrics(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))
	require.NoError(t, RegisterQueryMetrics(db))

	before := testutil.CollectAndCount(DatabaseQueryLatency)

	require.NoError(t, db.Create(&widget{Name: "lamp"}).Error)
	var got widget
	require.NoError(t, db.First(&got).Error)
	assert.Equal(t, "lamp", got.Name)

	assert.Greater(t, testutil.CollectAndCount(DatabaseQueryLatency), before)
}

func TestStartSpan(t *testing.T) {
	_, err := InitTracing(TracingConfig{ServiceName: "classifieds-test"})
	require.NoError(t, err)

	ctx, end := StartSpan(t.Context(), "repository", "List")
	assert.NotNil(t, ctx)
	end(assert.AnError)
}
