package migrations

import (
	"gofr.dev/pkg/gofr/migration"
)

const createIndexSpanID = `create index idx_spans_span_id
on spans (span_id);`

const createIndexParentID = `create index idx_spans_parent_id
on spans (parent_id);`

const createIndexSpanTraceID = `create index idx_spans_trace_id
on spans (trace_id, timestamp);`

func createIndices() migration.Migrate {
	return migration.Migrate{
		UP: func(d migration.Datasource) error {
			for _, stmt := range []string{createIndexSpanID, createIndexParentID, createIndexSpanTraceID} {
				if _, err := d.SQL.Exec(stmt); err != nil {
					return err
				}
			}

			return nil
		},
	}
}
