package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"habit-updater/internal/model"
	"habit-updater/internal/repository"
	"habit-updater/internal/service"
	"habit-updater/pkg/outbox"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RunState interface {
	Today() time.Time
	HasRunToday(ctx context.Context) (bool, error)
}

type LedgerReader interface {
	LastRun(ctx context.Context) (*time.Time, error)
}

type RunHistoryReader interface {
	Latest(ctx context.Context) (*model.Run, error)
}

type HabitReader interface {
	GetByID(ctx context.Context, id int) (*model.Habit, error)
}

type OutboxAdmin interface {
	GetStats(ctx context.Context) (outbox.Stats, error)
	RequeueFailed(ctx context.Context, limit int) (int64, error)
}

// StatusHandler serves read-only views of the updater state. history and
// outbox may be nil.
type StatusHandler struct {
	runs    RunState
	ledger  LedgerReader
	history RunHistoryReader
	habits  HabitReader
	outbox  OutboxAdmin
	logger  *zap.Logger
}

func NewStatusHandler(
	runs RunState,
	ledger LedgerReader,
	history RunHistoryReader,
	habits HabitReader,
	outbox OutboxAdmin,
	logger *zap.Logger,
) *StatusHandler {
	return &StatusHandler{
		runs:    runs,
		ledger:  ledger,
		history: history,
		habits:  habits,
		outbox:  outbox,
		logger:  logger,
	}
}

// Status reports the ledger date, whether today already ran and the last
// recorded run.
func (h *StatusHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	last, err := h.ledger.LastRun(ctx)
	if err != nil {
		h.logger.Error("Status: failed to read run ledger", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read run ledger"})
		return
	}

	today := h.runs.Today()
	resp := gin.H{
		"today":         model.FormatDay(today),
		"ran_today":     last != nil && model.SameDay(*last, today),
		"last_run_date": nil,
	}
	if last != nil {
		resp["last_run_date"] = model.FormatDay(*last)
	}

	if h.history != nil {
		run, err := h.history.Latest(ctx)
		if err != nil {
			h.logger.Warn("Status: failed to read run history", zap.Error(err))
		} else if run != nil {
			resp["last_run"] = run
		}
	}

	if h.outbox != nil {
		stats, err := h.outbox.GetStats(ctx)
		if err != nil {
			h.logger.Warn("Status: failed to read outbox stats", zap.Error(err))
		} else {
			resp["outbox"] = stats
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Schedule previews when a habit is next due.
func (h *StatusHandler) Schedule(c *gin.Context) {
	idStr := c.Param("id")
	habitID, err := strconv.Atoi(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid habit id"})
		return
	}

	habit, err := h.habits.GetByID(c.Request.Context(), habitID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
		return
	}
	if err != nil {
		h.logger.Error("Schedule: failed to fetch habit",
			zap.Int("habit_id", habitID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch habit"})
		return
	}

	today := h.runs.Today()
	next, err := service.NextOccurrence(habit.StartDate, habit.Frequency, today)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"habit_id": habit.ID,
			"error":    err.Error(),
		})
		return
	}

	resp := gin.H{
		"habit_id":        habit.ID,
		"frequency":       habit.Frequency,
		"start_date":      model.FormatDay(habit.StartDate),
		"due_today":       service.ShouldTrackOnDate(*habit, today),
		"next_occurrence": model.FormatDay(next),
		"ended":           habit.EndedBefore(next),
		"streak":          habit.Streak,
		"cur_date":        nil,
	}
	if habit.CurDate != nil {
		resp["cur_date"] = model.FormatDay(*habit.CurDate)
	}
	c.JSON(http.StatusOK, resp)
}

// RequeueOutbox moves failed outbox events back to pending.
func (h *StatusHandler) RequeueOutbox(c *gin.Context) {
	if h.outbox == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "outbox disabled"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	n, err := h.outbox.RequeueFailed(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("RequeueOutbox: failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to requeue events"})
		return
	}

	h.logger.Info("Requeued failed outbox events", zap.Int64("count", n))
	c.JSON(http.StatusOK, gin.H{"requeued": n})
}
