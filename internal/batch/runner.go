package batch

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/abhisek/tutorloop/internal/knowunity"
	"github.com/abhisek/tutorloop/internal/metrics"
	"github.com/abhisek/tutorloop/internal/session"
	"github.com/abhisek/tutorloop/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FallbackLevel is predicted for pairs whose conversation failed.
const FallbackLevel = session.DefaultLevel

// Directory lists students and their topics.
type Directory interface {
	ListStudents(ctx context.Context, setType string) ([]knowunity.Student, error)
	Topics(ctx context.Context, studentID string) ([]knowunity.Topic, error)
}

// Options controls a batch run.
type Options struct {
	SetType          string
	Turns            int
	MaxConversations int // 0 means all
	Parallel         int
	StudentID        string // optional filter
}

// Pair is one student-topic conversation to run.
type Pair struct {
	StudentID string
	Topic     knowunity.Topic
}

// Result is the outcome of one pair. Err is set for fallbacks.
type Result struct {
	Prediction knowunity.Prediction
	Fallback   bool
	Err        error
	Turns      int
}

// Report is the outcome of a batch run. An interrupted report holds only
// the pairs that were started and is never saved.
type Report struct {
	RunID       string
	Results     []Result
	Interrupted bool
}

// Predictions returns the submitted form of every result, in order.
func (r *Report) Predictions() []knowunity.Prediction {
	preds := make([]knowunity.Prediction, len(r.Results))
	for i, res := range r.Results {
		preds[i] = res.Prediction
	}
	return preds
}

// Fallbacks counts results that used the fallback level.
func (r *Report) Fallbacks() int {
	n := 0
	for _, res := range r.Results {
		if res.Fallback {
			n++
		}
	}
	return n
}

// Runner discovers pairs and runs them concurrently.
type Runner struct {
	driver  *Driver
	dir     Directory
	preds   store.PredictionRepo
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewRunner creates a Runner. preds, log and m may be nil.
func NewRunner(driver *Driver, dir Directory, preds store.PredictionRepo, log *zap.Logger, m *metrics.Metrics) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{driver: driver, dir: dir, preds: preds, log: log, metrics: m}
}

// Discover lists the pairs to run, honoring the student filter and the
// conversation cap.
func (r *Runner) Discover(ctx context.Context, opts Options) ([]Pair, error) {
	students, err := r.dir.ListStudents(ctx, opts.SetType)
	if err != nil {
		return nil, err
	}

	var pairs []Pair
	for _, st := range students {
		if opts.StudentID != "" && st.ID != opts.StudentID {
			continue
		}
		topics, err := r.dir.Topics(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range topics {
			if opts.MaxConversations > 0 && len(pairs) >= opts.MaxConversations {
				return pairs, nil
			}
			pairs = append(pairs, Pair{StudentID: st.ID, Topic: t})
		}
	}
	return pairs, nil
}

// Run discovers pairs, runs them and records the predictions under a new
// run id.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	pairs, err := r.Discover(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("discover conversations: %w", err)
	}
	r.log.Info("running conversations",
		zap.String("set_type", opts.SetType),
		zap.Int("pairs", len(pairs)),
		zap.Int("turns", opts.Turns),
		zap.Int("parallel", opts.Parallel))

	report := &Report{
		RunID:   uuid.NewString(),
		Results: r.RunPairs(ctx, pairs, opts),
	}

	if err := ctx.Err(); err != nil {
		report.Interrupted = true
		r.log.Warn("run interrupted, predictions not saved",
			zap.String("run_id", report.RunID),
			zap.Int("started", len(report.Results)),
			zap.Int("pairs", len(pairs)))
		return report, fmt.Errorf("run interrupted after %d of %d conversations: %w", len(report.Results), len(pairs), err)
	}

	if r.preds != nil {
		if err := r.preds.SaveRun(ctx, report.RunID, records(report.Results)); err != nil {
			return report, fmt.Errorf("save predictions: %w", err)
		}
	}
	return report, nil
}

// RunPairs runs every pair on a pool of opts.Parallel workers. A failing or
// panicking pair yields a fallback result and never affects the others.
// Results keep the order of pairs. Once ctx is done no further pair is
// started, and pairs that never started are left out of the results.
func (r *Runner) RunPairs(ctx context.Context, pairs []Pair, opts Options) []Result {
	results := make([]Result, len(pairs))
	started := make([]bool, len(pairs))

	var g errgroup.Group
	g.SetLimit(max(1, opts.Parallel))
	for i, p := range pairs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			started[i] = true
			results[i] = r.runPair(ctx, p, opts.Turns)
			return nil
		})
	}
	_ = g.Wait()

	out := results[:0]
	for i, res := range results {
		if started[i] {
			out = append(out, res)
		}
	}
	return out
}

func (r *Runner) runPair(ctx context.Context, p Pair, turns int) (res Result) {
	res.Prediction = knowunity.Prediction{
		StudentID:      p.StudentID,
		TopicID:        p.Topic.ID,
		PredictedLevel: FallbackLevel,
	}

	defer func() {
		if rec := recover(); rec != nil {
			res.Fallback = true
			res.Err = fmt.Errorf("panic: %v", rec)
			r.log.Error("conversation panicked",
				zap.String("student_id", p.StudentID),
				zap.String("topic_id", p.Topic.ID),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
		}
		res.Prediction.PredictedLevel = max(session.MinLevel, min(session.MaxLevel, res.Prediction.PredictedLevel))
		r.metrics.RecordSession(res.Fallback, res.Turns, res.Prediction.PredictedLevel)
	}()

	s, err := r.driver.RunConversation(ctx, p.StudentID, p.Topic, turns)
	if s != nil {
		res.Turns = s.TurnCount
	}
	if err != nil {
		res.Fallback = true
		res.Err = err
		r.log.Error("conversation failed, using fallback level",
			zap.String("student_id", p.StudentID),
			zap.String("topic_id", p.Topic.ID),
			zap.Int("fallback_level", FallbackLevel),
			zap.Error(err))
		return res
	}

	res.Prediction.PredictedLevel = s.EstimatedLevel
	return res
}

func records(results []Result) []store.PredictionRecord {
	recs := make([]store.PredictionRecord, len(results))
	for i, res := range results {
		recs[i] = store.PredictionRecord{
			StudentID:      res.Prediction.StudentID,
			TopicID:        res.Prediction.TopicID,
			PredictedLevel: res.Prediction.PredictedLevel,
			Fallback:       res.Fallback,
		}
		if res.Err != nil {
			recs[i].ErrorMessage = res.Err.Error()
		}
	}
	return recs
}
