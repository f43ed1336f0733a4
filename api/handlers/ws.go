package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/supportrag/internal/auth"
	"github.com/BaSui01/supportrag/internal/cache"
	"github.com/BaSui01/supportrag/internal/ctxkeys"
	"github.com/BaSui01/supportrag/internal/pool"
	"github.com/BaSui01/supportrag/rag"
	"github.com/BaSui01/supportrag/types"
)

// =============================================================================
// 🔌 WebSocket 聊天
// =============================================================================

// 客户端事件
const (
	EventSendMessage       = "sendMessage"
	EventGetMessageHistory = "getMessageHistory"
	EventPing              = "ping"
)

// 服务端事件
const (
	EventAuthenticated       = "authenticated"
	EventMessageSent         = "messageSent"
	EventMessageProcessing   = "messageProcessing"
	EventChatbotResponse     = "chatbotResponse"
	EventResponseConfidence  = "responseConfidence"
	EventMessageError        = "messageError"
	EventMessageHistory      = "messageHistory"
	EventMessageHistoryError = "messageHistoryError"
	EventPong                = "pong"
)

// messageError 错误码
const (
	CodeEmptyMessage      = "EMPTY_MESSAGE"
	CodeAIProcessingError = "AI_PROCESSING_ERROR"
	CodeInvalidEvent      = "INVALID_EVENT"
	CodeServerBusy        = "SERVER_BUSY"
)

const wsReadLimit = 64 << 10

var statusMessages = map[rag.Status]string{
	rag.StatusCheckingCache:      "Checking for cached responses...",
	rag.StatusLoadingContext:     "Loading conversation context...",
	rag.StatusSearchingKnowledge: "Searching knowledge base...",
	rag.StatusGeneratingResponse: "Generating personalized response...",
	rag.StatusError:              "Processing failed. Please try again.",
}

// Envelope WebSocket 消息信封
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SendMessageData sendMessage 事件数据
type SendMessageData struct {
	Message   string `json:"message"`
	Room      string `json:"room,omitempty"`
	Category  string `json:"category,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// HistoryRequestData getMessageHistory 事件数据
type HistoryRequestData struct {
	Limit int `json:"limit,omitempty"`
}

// TokenVerifier 校验连接令牌
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// WSMetrics WebSocket 指标
type WSMetrics interface {
	WSConnected(endpoint string) func()
	RecordWSMessage(direction, eventType string)
}

// TaskSubmitter 执行管线任务的有界池
type TaskSubmitter interface {
	TrySubmit(ctx context.Context, task pool.Task) error
}

type nopWSMetrics struct{}

func (nopWSMetrics) WSConnected(string) func()        { return func() {} }
func (nopWSMetrics) RecordWSMessage(string, string) {}

// WSHandler 处理 /ws/chat
type WSHandler struct {
	chat           *ChatHandler
	verifier       TokenVerifier
	metrics        WSMetrics
	jobs           TaskSubmitter
	originPatterns []string
	logger         *zap.Logger
}

// NewWSHandler 创建 WebSocket 处理器。verifier 为 nil 时所有连接以 anonymous 身份接入。
func NewWSHandler(chat *ChatHandler, verifier TokenVerifier, metrics WSMetrics, originPatterns []string, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopWSMetrics{}
	}
	return &WSHandler{
		chat:           chat,
		verifier:       verifier,
		metrics:        metrics,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("component", "ws_chat")),
	}
}

// WithTaskPool 让管线调用在共享池中执行，限制所有会话的并发生成数
func (h *WSHandler) WithTaskPool(jobs TaskSubmitter) *WSHandler {
	h.jobs = jobs
	return h
}

// ServeHTTP 在升级前完成令牌校验，失败时返回 401
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := h.identify(r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	// 长连接不受 http.Server 读写超时约束
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(wsReadLimit)

	done := h.metrics.WSConnected(r.URL.Path)
	defer done()

	sessionID := uuid.NewString()
	s := &wsSession{
		h:      h,
		conn:   conn,
		id:     id,
		logger: h.logger.With(zap.String("user_id", id.UserID), zap.String("session_id", sessionID)),
	}
	s.run(ctxkeys.WithSessionID(r.Context(), sessionID))
}

func (h *WSHandler) identify(r *http.Request) (auth.Identity, error) {
	if h.verifier == nil {
		return auth.Identity{UserID: "anonymous"}, nil
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return h.verifier.Verify(token)
}

// =============================================================================
// 会话
// =============================================================================

type wsSession struct {
	h      *WSHandler
	conn   *websocket.Conn
	id     auth.Identity
	logger *zap.Logger

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// run 读循环退出（断开或出错）时取消进行中的管线调用
func (s *wsSession) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		s.wg.Wait()
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
	}()

	s.logger.Info("websocket connected")
	_ = s.send(ctx, EventAuthenticated, map[string]any{
		"success": true,
		"message": "Successfully connected and authenticated",
		"user":    s.id,
	})

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.logDisconnect(err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			s.h.metrics.RecordWSMessage("in", "invalid")
			s.sendError(ctx, CodeInvalidEvent, "malformed event")
			continue
		}

		switch env.Type {
		case EventSendMessage:
			s.h.metrics.RecordWSMessage("in", env.Type)
			s.handleSend(ctx, env.Data)
		case EventGetMessageHistory:
			s.h.metrics.RecordWSMessage("in", env.Type)
			s.handleHistory(ctx, env.Data)
		case EventPing:
			s.h.metrics.RecordWSMessage("in", env.Type)
			_ = s.send(ctx, EventPong, map[string]any{
				"timestamp":     time.Now(),
				"userId":        s.id.UserID,
				"sessionActive": true,
			})
		default:
			s.h.metrics.RecordWSMessage("in", "unknown")
			s.sendError(ctx, CodeInvalidEvent, "unknown event type: "+env.Type)
		}
	}
}

func (s *wsSession) logDisconnect(err error) {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		s.logger.Info("websocket disconnected")
	default:
		if errors.Is(err, context.Canceled) {
			s.logger.Info("websocket disconnected")
			return
		}
		s.logger.Debug("websocket read ended", zap.Error(err))
	}
}

func (s *wsSession) handleSend(ctx context.Context, raw json.RawMessage) {
	var in SendMessageData
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			s.sendError(ctx, CodeInvalidEvent, "malformed sendMessage data")
			return
		}
	}

	text, verr := validateMessage(in.Message)
	if verr != nil {
		code := CodeInvalidEvent
		if strings.TrimSpace(in.Message) == "" {
			code = CodeEmptyMessage
		}
		s.sendError(ctx, code, verr.Message)
		return
	}

	msg := s.h.chat.newUserMessage(s.id, text, in.Category, in.Room)
	if in.MessageID != "" {
		msg.ID = in.MessageID
	}
	_ = s.send(ctx, EventMessageSent, map[string]any{
		"success":   true,
		"messageId": msg.ID,
		"timestamp": msg.Timestamp,
	})

	s.wg.Add(1)
	task := func(ctx context.Context) error {
		defer s.wg.Done()
		if err := ctx.Err(); err != nil {
			return err
		}
		s.process(ctxkeys.WithRequestID(ctx, msg.ID), msg)
		return nil
	}

	if s.h.jobs == nil {
		go func() { _ = task(ctx) }()
		return
	}
	if err := s.h.jobs.TrySubmit(ctx, task); err != nil {
		s.wg.Done()
		s.logger.Warn("pipeline task rejected", zap.String("message_id", msg.ID), zap.Error(err))
		s.sendError(ctx, CodeServerBusy, "Server is busy. Please try again shortly.")
	}
}

func (s *wsSession) process(ctx context.Context, msg cache.Message) {
	status := func(st rag.Status) {
		_ = s.send(ctx, EventMessageProcessing, map[string]any{
			"messageId": msg.ID,
			"status":    st,
			"timestamp": time.Now(),
			"message":   statusMessages[st],
		})
		if st == rag.StatusError {
			s.sendError(ctx, CodeAIProcessingError, "Failed to process message with AI")
		}
	}

	bot, res := s.h.chat.answer(ctx, s.id, msg, true, status)
	if ctx.Err() != nil {
		return
	}

	_ = s.send(ctx, EventChatbotResponse, bot)
	_ = s.send(ctx, EventResponseConfidence, map[string]any{
		"messageId":      msg.ID,
		"confidence":     res.Confidence,
		"contextUsed":    res.ContextUsed,
		"sources":        bot.Metadata.ContextSources,
		"processingTime": res.ProcessingTimeMS,
	})
}

func (s *wsSession) handleHistory(ctx context.Context, raw json.RawMessage) {
	var in HistoryRequestData
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &in)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	reply, err := s.h.chat.recent(ctx, s.id.UserID, limit)
	if err != nil {
		s.logger.Warn("failed to load history", zap.Error(err))
		_ = s.send(ctx, EventMessageHistoryError, map[string]any{
			"error":     "Failed to retrieve message history",
			"timestamp": time.Now(),
		})
		return
	}
	_ = s.send(ctx, EventMessageHistory, map[string]any{
		"success":   true,
		"messages":  reply.Messages,
		"count":     reply.Count,
		"userId":    reply.UserID,
		"source":    reply.Source,
		"timestamp": time.Now(),
	})
}

func (s *wsSession) sendError(ctx context.Context, code, message string) {
	_ = s.send(ctx, EventMessageError, map[string]any{
		"error":     message,
		"code":      code,
		"timestamp": time.Now(),
	})
}

// send 序列化并写出一个事件，写操作串行化
func (s *wsSession) send(ctx context.Context, eventType string, data any) error {
	b, err := json.Marshal(outEnvelope{Type: eventType, Data: data})
	if err != nil {
		return types.NewError(types.ErrInternalError, "marshal event").WithCause(err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(ctx, websocket.MessageText, b); err != nil {
		s.logger.Debug("websocket write failed", zap.String("event", eventType), zap.Error(err))
		return err
	}
	s.h.metrics.RecordWSMessage("out", eventType)
	return nil
}
