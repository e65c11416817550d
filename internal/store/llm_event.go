package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

var llmEventColumns = []string{
	"sequence", "timestamp", "provider", "model", "purpose",
	"input_tokens", "output_tokens", "latency_ms", "success",
	"error_message", "request_body", "response_body",
}

// eventRepo implements EventRepo backed by the global sequence counter.
type eventRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *eventRepo) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	query, args := sqlite().Insert(llmRequestEventsTable).
		Columns(llmEventColumns...).
		Values(
			seqNum, time.Now().UnixMilli(), data.Provider, data.Model, data.Purpose,
			data.InputTokens, data.OutputTokens, data.LatencyMs, data.Success,
			data.ErrorMessage, data.RequestBody, data.ResponseBody,
		).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save LLM request event: %w", err)
	}

	return nil
}

func (r *eventRepo) QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEvent, error) {
	sel := sqlite().Select(append([]string{"id"}, llmEventColumns...)...).
		From(entsql.Table(llmRequestEventsTable)).
		OrderBy(entsql.Desc("sequence"))

	var preds []*entsql.Predicate
	if opts.After > 0 {
		preds = append(preds, entsql.GT("sequence", opts.After))
	}
	if opts.Before > 0 {
		preds = append(preds, entsql.LT("sequence", opts.Before))
	}
	if !opts.From.IsZero() {
		preds = append(preds, entsql.GTE("timestamp", opts.From.UnixMilli()))
	}
	if !opts.To.IsZero() {
		preds = append(preds, entsql.LTE("timestamp", opts.To.UnixMilli()))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query LLM events: %w", err)
	}
	defer rows.Close()

	var events []LLMEvent
	for rows.Next() {
		e, err := scanLLMEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (r *eventRepo) GetLLMEvent(ctx context.Context, id int) (*LLMEvent, error) {
	query, args := sqlite().Select(append([]string{"id"}, llmEventColumns...)...).
		From(entsql.Table(llmRequestEventsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	e, err := scanLLMEvent(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (r *eventRepo) LLMUsageByPurpose(ctx context.Context) ([]PurposeUsage, error) {
	query, args := sqlite().Select(
		"purpose",
		entsql.As(entsql.Count("*"), "calls"),
		entsql.As(entsql.Sum("input_tokens"), "input_tokens"),
		entsql.As(entsql.Sum("output_tokens"), "output_tokens"),
		entsql.As(entsql.Avg("latency_ms"), "avg_latency_ms"),
	).
		From(entsql.Table(llmRequestEventsTable)).
		GroupBy("purpose").
		OrderBy("purpose").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage by purpose: %w", err)
	}
	defer rows.Close()

	var out []PurposeUsage
	for rows.Next() {
		var (
			u   PurposeUsage
			avg float64
		)
		if err := rows.Scan(&u.Purpose, &u.Calls, &u.InputTokens, &u.OutputTokens, &avg); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		u.AvgLatencyMs = int64(avg)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *eventRepo) LLMUsageByModel(ctx context.Context) ([]ModelUsage, error) {
	query, args := sqlite().Select(
		"model",
		entsql.As(entsql.Count("*"), "calls"),
		entsql.As(entsql.Sum("input_tokens"), "input_tokens"),
		entsql.As(entsql.Sum("output_tokens"), "output_tokens"),
	).
		From(entsql.Table(llmRequestEventsTable)).
		GroupBy("model").
		OrderBy("model").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage by model: %w", err)
	}
	defer rows.Close()

	var out []ModelUsage
	for rows.Next() {
		var u ModelUsage
		if err := rows.Scan(&u.Model, &u.Calls, &u.InputTokens, &u.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanLLMEvent(row rowScanner) (*LLMEvent, error) {
	var (
		e  LLMEvent
		ts int64
	)
	err := row.Scan(
		&e.ID, &e.Sequence, &ts, &e.Provider, &e.Model, &e.Purpose,
		&e.InputTokens, &e.OutputTokens, &e.LatencyMs, &e.Success,
		&e.ErrorMessage, &e.RequestBody, &e.ResponseBody,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan LLM event: %w", err)
	}
	e.Timestamp = fromMillis(ts)
	return &e, nil
}
