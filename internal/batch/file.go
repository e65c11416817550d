package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abhisek/tutorloop/internal/knowunity"
	"github.com/abhisek/tutorloop/internal/session"
	"github.com/abhisek/tutorloop/internal/store"
)

// WritePredictions writes preds as an indented JSON list, creating parent
// directories. The file is replaced atomically.
func WritePredictions(path string, preds []knowunity.Prediction) error {
	if preds == nil {
		preds = []knowunity.Prediction{}
	}
	data, err := json.MarshalIndent(preds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode predictions: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create predictions dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	return nil
}

// ReadPredictions loads a file written by WritePredictions.
func ReadPredictions(path string) ([]knowunity.Prediction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var preds []knowunity.Prediction
	if err := json.Unmarshal(data, &preds); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	return preds, nil
}

// SessionPredictions derives predictions from persisted sessions. Only
// finalized sessions count, in the order given.
func SessionPredictions(sessions []*session.Session) []knowunity.Prediction {
	preds := []knowunity.Prediction{}
	for _, s := range sessions {
		if !s.Finalized {
			continue
		}
		preds = append(preds, knowunity.Prediction{
			StudentID:      s.StudentID,
			TopicID:        s.TopicID,
			PredictedLevel: s.EstimatedLevel,
		})
	}
	return preds
}

// RecordPredictions converts stored prediction rows into predictions.
func RecordPredictions(recs []store.PredictionRecord) []knowunity.Prediction {
	preds := make([]knowunity.Prediction, len(recs))
	for i, r := range recs {
		preds[i] = knowunity.Prediction{
			StudentID:      r.StudentID,
			TopicID:        r.TopicID,
			PredictedLevel: r.PredictedLevel,
		}
	}
	return preds
}
