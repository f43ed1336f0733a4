package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/supportrag/internal/auth"
	"github.com/BaSui01/supportrag/internal/cache"
	"github.com/BaSui01/supportrag/internal/ctxkeys"
	"github.com/BaSui01/supportrag/llm"
	"github.com/BaSui01/supportrag/rag"
	"github.com/BaSui01/supportrag/types"
)

// =============================================================================
// 💬 聊天接口 Handler
// =============================================================================

const (
	// maxMessageRunes 单条提问的长度上限
	maxMessageRunes = 4000
	// defaultRoom 未指定房间时使用
	defaultRoom = "general"
	// defaultHistoryTurns 传给管线的历史条数
	defaultHistoryTurns = 5
)

// 机器人发送方
const (
	botName       = "AI Assistant"
	botNameCached = "AI Assistant (Cached)"
	botUserID     = "bot_rag"
	botCachedID   = "bot_cached"
)

// Pipeline RAG 问答管线
type Pipeline interface {
	Process(ctx context.Context, q rag.Query, opts ...rag.ProcessOption) *rag.Result
}

// ChatRequest 提问请求
type ChatRequest struct {
	Message  string `json:"message"`
	Category string `json:"category,omitempty"`
	Room     string `json:"room,omitempty"`
	UseCache *bool  `json:"use_cache,omitempty"`
}

// ResponseMetadata 回答附带的管线信息
type ResponseMetadata struct {
	Confidence      rag.Confidence      `json:"confidence"`
	ContextUsed     int                 `json:"contextUsed"`
	ContextSources  []rag.ContextSource `json:"contextSources"`
	Cached          bool                `json:"cached"`
	RetrievalMethod string              `json:"retrievalMethod,omitempty"`
	Type            string              `json:"type"`
	ProcessingTime  int64               `json:"processingTime"`
	RetrievalTime   int64               `json:"retrievalTime"`
	GenerationTime  int64               `json:"generationTime"`
	RAGEnabled      bool                `json:"ragEnabled"`
}

// BotResponse 一条机器人回答
type BotResponse struct {
	ID                string           `json:"id"`
	Message           string           `json:"message"`
	Sender            cache.Sender     `json:"sender"`
	Timestamp         time.Time        `json:"timestamp"`
	OriginalMessageID string           `json:"originalMessageId"`
	Room              string           `json:"room,omitempty"`
	Metadata          ResponseMetadata `json:"metadata"`
}

// ChatReply POST /api/v1/chat 的响应数据
type ChatReply struct {
	MessageID string      `json:"messageId"`
	Response  BotResponse `json:"response"`
}

// HistoryReply 历史消息响应数据
type HistoryReply struct {
	Messages []cache.Message `json:"messages"`
	Count    int             `json:"count"`
	UserID   string          `json:"userId"`
	Source   string          `json:"source"`
}

// ChatHandler 聊天处理器，HTTP 与 WebSocket 共用
type ChatHandler struct {
	pipeline Pipeline
	history  cache.MessageHistory
	turns    int
	logger   *zap.Logger
	now      func() time.Time
}

// NewChatHandler 创建聊天处理器。history 为 nil 时使用进程内存储。
func NewChatHandler(pipeline Pipeline, history cache.MessageHistory, historyTurns int, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if history == nil {
		history = cache.NewMemoryHistory(100)
	}
	if historyTurns <= 0 {
		historyTurns = defaultHistoryTurns
	}
	return &ChatHandler{
		pipeline: pipeline,
		history:  history,
		turns:    historyTurns,
		logger:   logger.With(zap.String("component", "chat")),
		now:      time.Now,
	}
}

// HandleChat 处理 POST /api/v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "authentication required", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	text, err := validateMessage(req.Message)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	useCache := req.UseCache == nil || *req.UseCache
	msg := h.newUserMessage(id, text, req.Category, req.Room)
	bot, _ := h.answer(r.Context(), id, msg, useCache, nil)

	WriteSuccess(w, ChatReply{MessageID: msg.ID, Response: bot})
}

// HandleHistory 处理 GET /api/v1/chat/history?limit=20
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "authentication required", h.logger)
		return
	}

	reply, err := h.recent(r.Context(), id.UserID, QueryInt(r, "limit", 20, 100))
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to load message history").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, reply)
}

// =============================================================================
// 🔄 会话处理（HTTP 与 WebSocket 共用）
// =============================================================================

func validateMessage(raw string) (string, *types.Error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", types.NewError(types.ErrInvalidRequest, "message cannot be empty").WithHTTPStatus(http.StatusBadRequest)
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return "", types.NewError(types.ErrInvalidRequest, "message is too long").WithHTTPStatus(http.StatusBadRequest)
	}
	return text, nil
}

func (h *ChatHandler) newUserMessage(id auth.Identity, text, category, room string) cache.Message {
	if room == "" {
		room = defaultRoom
	}
	return cache.Message{
		ID:      uuid.NewString(),
		Message: text,
		Sender: cache.Sender{
			UserID: id.UserID,
			Email:  id.Email,
			Type:   cache.SenderUser,
		},
		Timestamp: h.now(),
		Room:      room,
		Category:  category,
	}
}

// answer 读取历史、调用管线并记录问答。
// 历史在写入本条提问之前读取，提问本身不会出现在历史里。
func (h *ChatHandler) answer(ctx context.Context, id auth.Identity, msg cache.Message, useCache bool, status rag.StatusFunc) (BotResponse, *rag.Result) {
	prior, err := h.history.Recent(ctx, id.UserID, h.turns)
	if err != nil {
		h.logger.Warn("failed to load history", append(traceFields(ctx), zap.String("user_id", id.UserID), zap.Error(err))...)
	}
	h.remember(ctx, id.UserID, msg)

	var opts []rag.ProcessOption
	if status != nil {
		opts = append(opts, rag.WithStatus(status))
	}
	res := h.pipeline.Process(ctx, rag.Query{
		Text:     msg.Message,
		UserID:   id.UserID,
		Category: msg.Category,
		History:  turnsOf(prior),
		UseCache: useCache,
	}, opts...)

	bot := h.botResponse(res, msg)
	h.remember(ctx, id.UserID, cache.Message{
		ID:        bot.ID,
		Message:   bot.Message,
		Sender:    bot.Sender,
		Timestamp: bot.Timestamp,
		Room:      bot.Room,
	})

	h.logger.Info("question answered", append(traceFields(ctx),
		zap.String("user_id", id.UserID),
		zap.String("confidence", string(res.Confidence.Level)),
		zap.Bool("cached", res.Cached),
		zap.Int("context_used", res.ContextUsed),
		zap.Int64("processing_ms", res.ProcessingTimeMS),
	)...)
	return bot, res
}

// traceFields 取出 context 中的请求与会话 ID 作为日志字段
func traceFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 7)
	if id, ok := ctxkeys.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if id, ok := ctxkeys.SessionID(ctx); ok {
		fields = append(fields, zap.String("session_id", id))
	}
	return fields
}

func (h *ChatHandler) remember(ctx context.Context, userID string, msg cache.Message) {
	// 请求已结束时仍要写入历史
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := h.history.Append(ctx, userID, msg); err != nil {
		h.logger.Warn("failed to store message", zap.String("user_id", userID), zap.Error(err))
	}
}

func (h *ChatHandler) recent(ctx context.Context, userID string, limit int) (HistoryReply, error) {
	msgs, err := h.history.Recent(ctx, userID, limit)
	if err != nil {
		return HistoryReply{}, err
	}
	if msgs == nil {
		msgs = []cache.Message{}
	}
	return HistoryReply{
		Messages: msgs,
		Count:    len(msgs),
		UserID:   userID,
		Source:   h.history.Backend(),
	}, nil
}

func (h *ChatHandler) botResponse(res *rag.Result, replyTo cache.Message) BotResponse {
	sender := cache.Sender{UserID: botUserID, Type: cache.SenderBot, Name: botName, Model: res.Model}
	if res.Cached {
		sender = cache.Sender{UserID: botCachedID, Type: cache.SenderBot, Name: botNameCached}
	}
	sources := res.ContextSources
	if sources == nil {
		sources = []rag.ContextSource{}
	}
	return BotResponse{
		ID:                uuid.NewString(),
		Message:           res.Response,
		Sender:            sender,
		Timestamp:         h.now(),
		OriginalMessageID: replyTo.ID,
		Room:              replyTo.Room,
		Metadata: ResponseMetadata{
			Confidence:      res.Confidence,
			ContextUsed:     res.ContextUsed,
			ContextSources:  sources,
			Cached:          res.Cached,
			RetrievalMethod: res.RetrievalMethod,
			Type:            res.Type,
			ProcessingTime:  res.ProcessingTimeMS,
			RetrievalTime:   res.RetrievalTimeMS,
			GenerationTime:  res.GenerationTimeMS,
			RAGEnabled:      res.Type != rag.TypeStaticFallback,
		},
	}
}

// turnsOf 用户消息映射为 user，其余为 assistant
func turnsOf(msgs []cache.Message) []llm.Turn {
	if len(msgs) == 0 {
		return nil
	}
	turns := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleAssistant
		if m.Sender.Type == cache.SenderUser {
			role = llm.RoleUser
		}
		turns = append(turns, llm.Turn{Role: role, Content: m.Message})
	}
	return turns
}
