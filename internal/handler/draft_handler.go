package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tender-match-go/internal/model"
	"tender-match-go/internal/service"
	"tender-match-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// DraftHandler 负责处理标书起草的 WebSocket 连接。
type DraftHandler struct {
	draftService service.DraftService
}

// NewDraftHandler 创建一个新的 DraftHandler。
func NewDraftHandler(draftService service.DraftService) *DraftHandler {
	return &DraftHandler{draftService: draftService}
}

// lockedConn 串行化对同一连接的写入，起草 goroutine 与读循环都会写。
type lockedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (l *lockedConn) WriteMessage(messageType int, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(messageType, data)
}

func (l *lockedConn) writeJSON(v interface{}) {
	b, _ := json.Marshal(v)
	_ = l.WriteMessage(websocket.TextMessage, b)
}

type draftMessage struct {
	Type string `json:"type"`
	model.ProjectFields
}

// Handle 处理一个传入的 WebSocket 连接。
// 客户端发送项目信息 JSON 开始起草，发送 {"type":"stop"} 停止当前输出。
func (h *DraftHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立, remote: %s", c.ClientIP())

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	out := &lockedConn{conn: conn}
	var (
		stop    atomic.Bool
		running atomic.Bool
		wg      sync.WaitGroup
	)
	defer wg.Wait()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			cancel()
			return
		}

		var msg draftMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			out.writeJSON(gin.H{"error": "消息格式错误"})
			continue
		}
		if msg.Type == "stop" {
			stop.Store(true)
			out.writeJSON(gin.H{"type": "stop", "message": "响应已停止", "timestamp": time.Now().UnixMilli()})
			continue
		}
		if !running.CompareAndSwap(false, true) {
			out.writeJSON(gin.H{"error": "上一份草稿仍在生成中"})
			continue
		}

		stop.Store(false)
		wg.Add(1)
		go func(fields model.ProjectFields) {
			defer wg.Done()
			defer running.Store(false)
			if _, err := h.draftService.StreamDraft(ctx, fields, out, stop.Load); err != nil {
				log.Errorf("处理起草请求失败: %v", err)
				out.writeJSON(gin.H{"error": err.Error()})
				out.writeJSON(gin.H{"type": "completion", "status": "finished", "timestamp": time.Now().UnixMilli()})
			}
		}(msg.ProjectFields)
	}
}

// ListDrafts 返回最近生成的草稿，?limit= 控制条数。
func (h *DraftHandler) ListDrafts(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			respondError(c, "DraftHandler", fmt.Errorf("%w: limit must be a positive integer", model.ErrInvalidArgument))
			return
		}
		limit = v
	}
	drafts, err := h.draftService.RecentDrafts(c.Request.Context(), limit)
	if err != nil {
		respondError(c, "DraftHandler", err)
		return
	}
	respondOK(c, "success", drafts)
}

// GetDraft 返回单份草稿。
func (h *DraftHandler) GetDraft(c *gin.Context) {
	draft, err := h.draftService.GetDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "DraftHandler", err)
		return
	}
	respondOK(c, "success", draft)
}
