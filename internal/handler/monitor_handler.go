package handler

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/response"
	"github.com/stemsi/exstem-academy/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	countInterval     = 15 * time.Second
)

// MonitorHandler streams attempt outcomes of an exam to admins over SSE.
type MonitorHandler struct {
	rdb      *redis.Client
	catalog  *service.ExamCatalogService
	attempts *service.AttemptService
	log      zerolog.Logger
}

func NewMonitorHandler(
	rdb *redis.Client,
	catalog *service.ExamCatalogService,
	attempts *service.AttemptService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:      rdb,
		catalog:  catalog,
		attempts: attempts,
		log:      log.With().Str("component", "monitor_handler").Logger(),
	}
}

type monitorCounts struct {
	Type       string `json:"type"`
	ExamID     string `json:"exam_id"`
	InProgress int    `json:"in_progress"`
	Unsaved    int    `json:"unsaved"`
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:exam_ref/monitor
// Sends a counts event on connect and every 15s, then forwards each completed
// outcome published for the exam.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	ref, ok := parseUUIDParam(c, "exam_ref")
	if !ok {
		return
	}

	def, err := h.catalog.Load(c.Request.Context(), ref)
	if err != nil {
		status, code := errorStatus(err)
		response.Fail(c, status, code)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// Without Redis only the periodic counts are sent.
	var ch <-chan *redis.Message
	if h.rdb != nil {
		pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamAttemptsChannel(def.ID))
		defer pubsub.Close()
		ch = pubsub.Channel()
	}

	h.writeCounts(c, def.ID)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	counts := time.NewTicker(countInterval)
	defer counts.Stop()

	h.log.Info().Str("exam_id", def.ID).Msg("Admin attached to attempt monitor")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", def.ID).Msg("Admin detached from attempt monitor")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Outcomes are published as JSON already.
			writeSSE(c, []byte(msg.Payload))

		case <-counts.C:
			h.writeCounts(c, def.ID)

		case <-keepAlive.C:
			writeSSE(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) writeCounts(c *gin.Context, examID string) {
	inProgress, unsaved := h.attempts.LiveCount(examID)
	payload, _ := json.Marshal(monitorCounts{
		Type:       "counts",
		ExamID:     examID,
		InProgress: inProgress,
		Unsaved:    unsaved,
	})
	writeSSE(c, payload)
}

func writeSSE(c *gin.Context, data []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
