package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// CategoryCacheLookups counts category cache reads by result ("hit" or "miss").
	CategoryCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classifieds_category_cache_lookups_total",
		Help: "Category cache lookups by result",
	}, []string{"result"})

	// ProductViews counts recorded product detail views.
	ProductViews = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classifieds_product_views_total",
		Help: "Total number of recorded product views",
	})

	// MessagesSent counts buyer messages stored.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classifieds_messages_sent_total",
		Help: "Total number of messages sent to sellers",
	})

	// ImagesUploaded counts product images written to object storage.
	ImagesUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classifieds_product_images_uploaded_total",
		Help: "Total number of product images uploaded",
	})

	// WebSocketBackpressureDrops counts notifications dropped by reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classifieds_websocket_backpressure_drops_total",
		Help: "Total number of websocket notifications dropped",
	}, []string{"reason"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "classifieds_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

const queryStartKey = "observability:query_start"

// RegisterQueryMetrics installs GORM callbacks that record DatabaseQueryLatency
// for every create, query, update, delete, row and raw statement.
func RegisterQueryMetrics(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(queryStartKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(queryStartKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			table := tx.Statement.Table
			if table == "" {
				table = "unknown"
			}
			DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
		}
	}

	cb := db.Callback()
	steps := []struct {
		operation string
		before    func(string, func(*gorm.DB)) error
		after     func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, s := range steps {
		if err := s.before("metrics:before_"+s.operation, before); err != nil {
			return err
		}
		if err := s.after("metrics:after_"+s.operation, after(s.operation)); err != nil {
			return err
		}
	}
	return nil
}
