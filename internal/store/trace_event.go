package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/abhisek/tutorloop/internal/trace"
)

var traceColumns = []string{
	"sequence", "timestamp", "student_id", "topic_id", "topic", "agent", "detail",
}

// traceRepo implements TraceRepo backed by the global sequence counter.
type traceRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *traceRepo) AppendTrace(ctx context.Context, e trace.Event) (int64, error) {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}

	query, args := sqlite().Insert(traceEventsTable).
		Columns(traceColumns...).
		Values(seqNum, toMillis(e.Timestamp), e.StudentID, e.TopicID, e.Topic, e.Agent, e.Detail).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("save trace event: %w", err)
	}
	return seqNum, nil
}

func (r *traceRepo) ListTraces(ctx context.Context, f TraceFilter) ([]trace.Event, error) {
	sel := sqlite().Select(traceColumns...).
		From(entsql.Table(traceEventsTable)).
		OrderBy(entsql.Desc("sequence"))

	var preds []*entsql.Predicate
	if f.StudentID != "" {
		preds = append(preds, entsql.EQ("student_id", f.StudentID))
	}
	if f.TopicID != "" {
		preds = append(preds, entsql.EQ("topic_id", f.TopicID))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trace events: %w", err)
	}
	defer rows.Close()

	var events []trace.Event
	for rows.Next() {
		var (
			e  trace.Event
			ts int64
		)
		if err := rows.Scan(&e.Sequence, &ts, &e.StudentID, &e.TopicID, &e.Topic, &e.Agent, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan trace event: %w", err)
		}
		e.Timestamp = fromMillis(ts)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first keeps Limit meaning "the last N"; callers want them in order.
	slices.Reverse(events)
	return events, nil
}
