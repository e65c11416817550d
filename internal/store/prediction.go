package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

var predictionColumns = []string{
	"run_id", "student_id", "topic_id", "predicted_level", "fallback", "error_message", "created_at",
}

var submissionColumns = []string{
	"run_id", "kind", "set_type", "predictions", "score", "response", "created_at",
}

// predictionRepo implements PredictionRepo.
type predictionRepo struct {
	db *sql.DB
}

func (r *predictionRepo) SaveRun(ctx context.Context, runID string, preds []PredictionRecord) error {
	if len(preds) == 0 {
		return nil
	}

	ins := sqlite().Insert(predictionsTable).Columns(predictionColumns...)
	for _, p := range preds {
		ins.Values(runID, p.StudentID, p.TopicID, p.PredictedLevel, p.Fallback, p.ErrorMessage, toMillis(p.CreatedAt))
	}
	query, args := ins.OnConflict(
		entsql.ConflictColumns("run_id", "student_id", "topic_id"),
		entsql.ResolveWithNewValues(),
	).Query()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save predictions: %w", err)
	}
	return nil
}

func (r *predictionRepo) ListRun(ctx context.Context, runID string) ([]PredictionRecord, error) {
	query, args := sqlite().Select(predictionColumns...).
		From(entsql.Table(predictionsTable)).
		Where(entsql.EQ("run_id", runID)).
		OrderBy("id").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []PredictionRecord
	for rows.Next() {
		var (
			p       PredictionRecord
			created int64
		)
		if err := rows.Scan(&p.RunID, &p.StudentID, &p.TopicID, &p.PredictedLevel,
			&p.Fallback, &p.ErrorMessage, &created); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		p.CreatedAt = fromMillis(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *predictionRepo) LatestRunID(ctx context.Context) (string, error) {
	query, args := sqlite().Select("run_id").
		From(entsql.Table(predictionsTable)).
		OrderBy(entsql.Desc("id")).
		Limit(1).
		Query()

	var runID string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return runID, nil
}

func (r *predictionRepo) RecordSubmission(ctx context.Context, sub Submission) error {
	var score any
	if sub.Score != nil {
		score = *sub.Score
	}
	query, args := sqlite().Insert(submissionsTable).
		Columns(submissionColumns...).
		Values(sub.RunID, sub.Kind, sub.SetType, sub.Predictions, score, sub.Response, toMillis(sub.CreatedAt)).
		Query()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

func (r *predictionRepo) ListSubmissions(ctx context.Context, limit int) ([]Submission, error) {
	sel := sqlite().Select(append([]string{"id"}, submissionColumns...)...).
		From(entsql.Table(submissionsTable)).
		OrderBy(entsql.Desc("id"))
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var (
			s       Submission
			score   sql.NullFloat64
			created int64
		)
		if err := rows.Scan(&s.ID, &s.RunID, &s.Kind, &s.SetType, &s.Predictions,
			&score, &s.Response, &created); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if score.Valid {
			v := score.Float64
			s.Score = &v
		}
		s.CreatedAt = fromMillis(created)
		out = append(out, s)
	}
	return out, rows.Err()
}
