package transport

import (
	"net/http"
	"strconv"

	"github.com/ds124wfegd/spa-booking/pkg/queue"
	"github.com/gin-gonic/gin"
)

// StatsProvider reports background worker statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

type AdminHandler struct {
	inspector queue.Inspector
	dlq       queue.DLQHandler
	workers   []StatsProvider
}

// NewAdminHandler: inspector and dlq are nil when the queue is disabled.
func NewAdminHandler(inspector queue.Inspector, dlq queue.DLQHandler, workers ...StatsProvider) *AdminHandler {
	return &AdminHandler{inspector: inspector, dlq: dlq, workers: workers}
}

func (h *AdminHandler) QueueStats(c *gin.Context) {
	workers := make([]map[string]interface{}, 0, len(h.workers))
	for _, w := range h.workers {
		workers = append(workers, w.GetStats())
	}

	if h.inspector == nil {
		respond(c, http.StatusOK, gin.H{"queue_enabled": false, "workers": workers})
		return
	}

	ctx := c.Request.Context()
	stats, err := h.inspector.GetQueueStats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	dlqStats, err := h.inspector.GetDLQStats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"queue_enabled": true,
		"queue":         stats,
		"dlq":           dlqStats,
		"workers":       workers,
	})
}

func (h *AdminHandler) FailedTasks(c *gin.Context) {
	if h.dlq == nil {
		respond(c, http.StatusOK, []interface{}{})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	tasks, err := h.dlq.GetFailedTasks(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, tasks)
}

func (h *AdminHandler) RequeueFailedTask(c *gin.Context) {
	if h.dlq == nil {
		badRequest(c, "task queue is disabled")
		return
	}

	if err := h.dlq.RequeueFailedTask(c.Request.Context(), c.Param("task_id")); err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{"requeued": true})
}
