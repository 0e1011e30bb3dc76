package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/logger"
	"github.com/arungoks/tankerapp/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SSE event names
const (
	EventBills     = "bills"
	EventCycles    = "cycles"
	EventError     = "error"
	EventHeartbeat = "heartbeat"
)

// Streams opens live subscriptions on bills and cycle history
type Streams interface {
	SubscribeBills(ctx context.Context, from, to *tanker.Date) (shared.Subscription[[]tanker.ApartmentBill], error)
	SubscribeCurrentBills(ctx context.Context) (shared.Subscription[[]tanker.ApartmentBill], error)
	SubscribeHistory(ctx context.Context) (shared.Subscription[[]tanker.BillingCycle], error)
}

// SSEMessage is one server-sent event
type SSEMessage struct {
	Event string
	Data  string
	ID    string
}

// StreamHandler serves subscriptions as server-sent event streams. Every
// value of a subscription becomes one event carrying the full state, so a
// client only ever renders the latest event.
type StreamHandler struct {
	BaseHandler
	streams    Streams
	logger     *zap.Logger
	heartbeat  time.Duration
	maxClients int
	clients    atomic.Int64
	ctx        context.Context
	cancel     context.CancelFunc
}

// StreamOption configures a StreamHandler
type StreamOption func(*StreamHandler)

// WithSSELogger sets the logger for the handler
func WithSSELogger(logger *zap.Logger) StreamOption {
	return func(h *StreamHandler) {
		h.logger = logger
	}
}

// WithSSEHeartbeat sets the heartbeat interval
func WithSSEHeartbeat(interval time.Duration) StreamOption {
	return func(h *StreamHandler) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// WithSSEMaxClients caps concurrent streams; 0 means unlimited
func WithSSEMaxClients(max int) StreamOption {
	return func(h *StreamHandler) {
		h.maxClients = max
	}
}

// NewStreamHandler creates a new StreamHandler
func NewStreamHandler(streams Streams, opts ...StreamOption) *StreamHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &StreamHandler{
		streams:    streams,
		logger:     zap.NewNop(),
		heartbeat:  30 * time.Second,
		maxClients: 100,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes implements router.RouteRegistrar
func (h *StreamHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/bills/stream", h.StreamBills)
	rg.GET("/cycles/stream", h.StreamHistory)
	rg.GET("/cycles/current/stream", h.StreamCurrentBills)
}

// Stop ends every open stream. Call it before shutting the server down,
// open streams would otherwise hold the shutdown until its deadline.
func (h *StreamHandler) Stop() {
	h.cancel()
	h.logger.Info("SSE streams stopped", zap.Int64("open_streams", h.clients.Load()))
}

// ClientCount returns the number of open streams
func (h *StreamHandler) ClientCount() int {
	return int(h.clients.Load())
}

// StreamBills streams the bills of a (from, to] range
//
//	GET /bills/stream?from=&to=
func (h *StreamHandler) StreamBills(c *gin.Context) {
	var q dto.RangeQuery
	if !bind(c, &q, c.ShouldBindQuery) {
		return
	}
	r, err := parseRange(q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !h.acquire(c) {
		return
	}
	sub, err := h.streams.SubscribeBills(c.Request.Context(), r.From, r.To)
	if err != nil {
		h.release()
		h.HandleError(c, err)
		return
	}
	serveStream(h, c, EventBills, sub, billsPayload)
}

// StreamCurrentBills streams the bills of the open cycle. The stream follows
// cycle closes: after a close it continues with the new, empty cycle.
//
//	GET /cycles/current/stream
func (h *StreamHandler) StreamCurrentBills(c *gin.Context) {
	if !h.acquire(c) {
		return
	}
	sub, err := h.streams.SubscribeCurrentBills(c.Request.Context())
	if err != nil {
		h.release()
		h.HandleError(c, err)
		return
	}
	serveStream(h, c, EventBills, sub, billsPayload)
}

// StreamHistory streams the closed cycle history
//
//	GET /cycles/stream
func (h *StreamHandler) StreamHistory(c *gin.Context) {
	if !h.acquire(c) {
		return
	}
	sub, err := h.streams.SubscribeHistory(c.Request.Context())
	if err != nil {
		h.release()
		h.HandleError(c, err)
		return
	}
	serveStream(h, c, EventCycles, sub, func(cycles []tanker.BillingCycle) any {
		return dto.ToCycleResponses(cycles)
	})
}

func billsPayload(bills []tanker.ApartmentBill) any {
	return dto.ToBillResponses(bills)
}

// acquire reserves a stream slot, answering 503 when none is left
func (h *StreamHandler) acquire(c *gin.Context) bool {
	n := h.clients.Add(1)
	if h.maxClients > 0 && n > int64(h.maxClients) {
		h.clients.Add(-1)
		h.Error(c, dto.ErrCodeTooManyStreams, "Maximum number of SSE connections reached")
		return false
	}
	return true
}

func (h *StreamHandler) release() {
	h.clients.Add(-1)
}

// serveStream writes sub to the client until the client leaves, the
// subscription ends or the handler stops. Errors of the subscription are
// sent as error events and the stream stays open.
func serveStream[T any](h *StreamHandler, c *gin.Context, event string, sub shared.Subscription[T], render func(T) any) {
	defer h.release()
	defer sub.Close()

	log := logger.GetGinLogger(c)
	w := c.Writer
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	updates, errs := sub.Updates(), sub.Errors()
	var seq uint64
	for {
		var msg SSEMessage
		select {
		case <-c.Request.Context().Done():
			return
		case <-h.ctx.Done():
			return
		case v, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(render(v))
			if err != nil {
				log.Error("Failed to marshal SSE event", zap.String("event", event), zap.Error(err))
				continue
			}
			seq++
			msg = SSEMessage{Event: event, Data: string(data), ID: strconv.FormatUint(seq, 10)}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			msg = errorMessage(err)
			log.Warn("Stream source failed", zap.String("code", shared.ErrorCode(err)), zap.Error(err))
		case <-ticker.C:
			msg = SSEMessage{
				Event: EventHeartbeat,
				Data:  fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()),
			}
		}

		if err := writeEvent(w, msg); err != nil {
			log.Debug("SSE client went away", zap.Error(err))
			return
		}
		w.Flush()
	}
}

func errorMessage(err error) SSEMessage {
	code := shared.ErrorCode(err)
	if code == "" {
		code = dto.ErrCodeInternal
	}
	data, _ := json.Marshal(dto.ErrorInfo{Code: code, Message: err.Error()})
	return SSEMessage{Event: EventError, Data: string(data)}
}

// writeEvent writes msg in the text/event-stream format
func writeEvent(w io.Writer, msg SSEMessage) error {
	if msg.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", msg.Event); err != nil {
			return err
		}
	}
	if msg.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", msg.ID); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", msg.Data)
	return err
}
