package service

import (
	"context"
	"time"

	"habit-updater/internal/model"
	"habit-updater/pkg/logger"
	"habit-updater/pkg/metrics"

	"go.uber.org/zap"
)

// OccurrenceRecorder writes "habit X is due on day D" markers.
type OccurrenceRecorder struct {
	store  OccurrenceStore
	logger *zap.Logger
}

func NewOccurrenceRecorder(store OccurrenceStore, logger *zap.Logger) *OccurrenceRecorder {
	return &OccurrenceRecorder{
		store:  store,
		logger: logger,
	}
}

// Record inserts an incomplete occurrence for habitID on date. A marker that
// already exists is left untouched and reported as false.
func (r *OccurrenceRecorder) Record(ctx context.Context, habitID int, date time.Time) (bool, error) {
	date = model.Day(date)
	log := logger.WithTrace(ctx, r.logger)

	inserted, err := r.store.Insert(ctx, habitID, date)
	if err != nil {
		return false, storageErr("insert occurrence", err)
	}

	if !inserted {
		log.Debug("Occurrence already recorded",
			zap.Int("habit_id", habitID),
			zap.String("date", model.FormatDay(date)),
		)
		return false, nil
	}

	metrics.IncrementOccurrenceRecorded()
	log.Info("Recorded habit occurrence",
		zap.Int("habit_id", habitID),
		zap.String("date", model.FormatDay(date)),
	)
	return true, nil
}
