/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/friendsincode/lectern/internal/models"
	"github.com/friendsincode/lectern/internal/telemetry"
)

const (
	startKey = "lectern:start"
	spanKey  = "lectern:span"
)

// knownTables are the only table labels exported; anything else is folded
// into "other" so raw statements cannot grow the label set.
var knownTables = map[string]bool{
	models.AudioSchedule{}.TableName():       true,
	models.AudioSchedulePreset{}.TableName(): true,
}

// RegisterCallbacks times every query, create, update and delete, labelled by
// the schedule or preset table it touched, and wraps each in a span.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Query().Before("gorm:query").Register("lectern:before_query", begin("query")),
		cb.Query().After("gorm:query").Register("lectern:after_query", finish("query")),
		cb.Create().Before("gorm:create").Register("lectern:before_create", begin("create")),
		cb.Create().After("gorm:create").Register("lectern:after_create", finish("create")),
		cb.Update().Before("gorm:update").Register("lectern:before_update", begin("update")),
		cb.Update().After("gorm:update").Register("lectern:after_update", finish("update")),
		cb.Delete().Before("gorm:delete").Register("lectern:before_delete", begin("delete")),
		cb.Delete().After("gorm:delete").Register("lectern:after_delete", finish("delete")),
	)
}

func tableLabel(db *gorm.DB) string {
	if knownTables[db.Statement.Table] {
		return db.Statement.Table
	}
	return "other"
}

func begin(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		db.InstanceSet(startKey, time.Now())
		if ctx := db.Statement.Context; ctx != nil {
			ctx, span := telemetry.StartSpan(ctx, "db", operation)
			db.Statement.Context = ctx
			db.InstanceSet(spanKey, span)
		}
	}
}

func finish(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		table := tableLabel(db)
		failed := db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound)

		if v, ok := db.InstanceGet(startKey); ok {
			if start, ok := v.(time.Time); ok {
				telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
			}
		}
		if failed {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, table).Inc()
		}

		if v, ok := db.InstanceGet(spanKey); ok {
			if span, ok := v.(trace.Span); ok {
				telemetry.AddSpanAttributes(span, map[string]any{
					"db.sql.table": table,
					"db.rows":      db.RowsAffected,
				})
				if failed {
					telemetry.RecordError(span, db.Error)
				}
				span.End()
			}
		}
	}
}

// UpdateConnectionMetrics records the connection pool size.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsActive.Set(float64(sqlDB.Stats().OpenConnections))
}
