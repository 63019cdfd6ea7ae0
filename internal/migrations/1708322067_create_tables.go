package migrations

import (
	"gofr.dev/pkg/gofr/migration"
)

const createTableTraces = `create table if not exists traces
(
    id        bigint unsigned auto_increment
        primary key,
    trace_id  char(16) not null,
    timestamp bigint   not null,
    constraint trace_id
        unique (trace_id)
);
`

// spans keeps every reported fragment as received. Merging happens when a trace is read back.
// traces is keyed by the low 64 bits of the trace id; trace_id_high holds the rest when reported.
const createTableSpans = `create table if not exists spans
(
    id              bigint unsigned auto_increment
        primary key,
    trace_id        bigint unsigned not null,
    trace_id_high   char(16)        null,
    span_id         char(16)        not null,
    parent_id       char(16)        null,
    kind            varchar(16)     null,
    name            varchar(255)    null,
    timestamp       bigint          not null default 0,
    duration        bigint          not null default 0,
    shared          bool            not null default false,
    debug           bool            not null default false,
    local_endpoint  json            null,
    remote_endpoint json            null,
    annotations     json            null,
    tags            json            null,
    constraint fk_spans_trace
        foreign key (trace_id) references traces (id)
);
`

func createTables() migration.Migrate {
	return migration.Migrate{
		UP: func(d migration.Datasource) error {
			_, err := d.SQL.Exec(createTableTraces)
			if err != nil {
				return err
			}

			_, err = d.SQL.Exec(createTableSpans)
			if err != nil {
				return err
			}

			return nil
		},
	}
}
