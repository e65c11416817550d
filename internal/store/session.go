package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/abhisek/tutorloop/internal/session"
)

// sqlite returns a statement builder for the SQLite dialect.
func sqlite() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

var sessionColumns = []string{
	"student_id", "topic_id", "topic_name", "conversation_id",
	"turn_count", "estimated_level", "confidence", "promo_votes",
	"level_locked", "switch_reason", "misconceptions", "history",
	"finalized", "updated_at",
}

var diagnosticEventColumns = []string{
	"student_id", "topic_id", "turn", "is_correct", "reasoning_score",
	"misconception", "llm_level", "computed_level", "confidence", "signal",
}

// sessionRepo implements SessionRepo. Sessions are stored as one row per
// student-topic pair; diagnostic events live in their own table.
type sessionRepo struct {
	db *sql.DB
}

func (r *sessionRepo) Save(ctx context.Context, s *session.Session) error {
	misconceptions, err := json.Marshal(orEmpty(s.Misconceptions))
	if err != nil {
		return fmt.Errorf("marshal misconceptions: %w", err)
	}
	history, err := json.Marshal(orEmpty(s.History))
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	s.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query, args := sqlite().Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(
			s.StudentID, s.TopicID, s.TopicName, s.ConversationID,
			s.TurnCount, s.EstimatedLevel, s.Confidence, s.PromoVotes,
			s.LevelLocked, string(s.SwitchReason), string(misconceptions), string(history),
			s.Finalized, toMillis(s.UpdatedAt),
		).
		OnConflict(
			entsql.ConflictColumns("student_id", "topic_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	query, args = sqlite().Delete(diagnosticEventsTable).
		Where(pairPredicate(s.StudentID, s.TopicID)).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear diagnostic events: %w", err)
	}

	if len(s.DiagnosticEvents) > 0 {
		ins := sqlite().Insert(diagnosticEventsTable).Columns(diagnosticEventColumns...)
		for _, e := range s.DiagnosticEvents {
			ins.Values(
				s.StudentID, s.TopicID, e.Turn, e.IsCorrect, e.ReasoningScore,
				nullString(e.Misconception), e.LLMLevel, e.ComputedLevel, e.Confidence, e.Signal,
			)
		}
		query, args = ins.Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert diagnostic events: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, studentID, topicID string) (*session.Session, error) {
	query, args := sqlite().Select(sessionColumns...).
		From(entsql.Table(sessionsTable)).
		Where(pairPredicate(studentID, topicID)).
		Query()

	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	if s.DiagnosticEvents, err = r.events(ctx, studentID, topicID); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *sessionRepo) List(ctx context.Context, studentID string) ([]*session.Session, error) {
	sel := sqlite().Select(sessionColumns...).
		From(entsql.Table(sessionsTable)).
		OrderBy("student_id", "topic_id")
	if studentID != "" {
		sel.Where(entsql.EQ("student_id", studentID))
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	rows.Close()

	for _, s := range sessions {
		if s.DiagnosticEvents, err = r.events(ctx, s.StudentID, s.TopicID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (r *sessionRepo) events(ctx context.Context, studentID, topicID string) ([]session.DiagnosticEvent, error) {
	query, args := sqlite().Select(diagnosticEventColumns[2:]...).
		From(entsql.Table(diagnosticEventsTable)).
		Where(pairPredicate(studentID, topicID)).
		OrderBy("turn").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query diagnostic events: %w", err)
	}
	defer rows.Close()

	var events []session.DiagnosticEvent
	for rows.Next() {
		var (
			e    session.DiagnosticEvent
			misc sql.NullString
		)
		if err := rows.Scan(&e.Turn, &e.IsCorrect, &e.ReasoningScore, &misc,
			&e.LLMLevel, &e.ComputedLevel, &e.Confidence, &e.Signal); err != nil {
			return nil, fmt.Errorf("scan diagnostic event: %w", err)
		}
		if misc.Valid {
			m := misc.String
			e.Misconception = &m
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		s              session.Session
		reason         string
		misconceptions string
		history        string
		updatedAt      int64
	)
	err := row.Scan(
		&s.StudentID, &s.TopicID, &s.TopicName, &s.ConversationID,
		&s.TurnCount, &s.EstimatedLevel, &s.Confidence, &s.PromoVotes,
		&s.LevelLocked, &reason, &misconceptions, &history,
		&s.Finalized, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.SwitchReason = session.SwitchReason(reason)
	s.UpdatedAt = fromMillis(updatedAt)

	if err := json.Unmarshal([]byte(misconceptions), &s.Misconceptions); err != nil {
		return nil, fmt.Errorf("unmarshal misconceptions: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &s.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return &s, nil
}

func pairPredicate(studentID, topicID string) *entsql.Predicate {
	return entsql.And(
		entsql.EQ("student_id", studentID),
		entsql.EQ("topic_id", topicID),
	)
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
