package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/qunqun-dev/date-poll/backend/internal/availability"
	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/live"
)

const liveWriteTimeout = 10 * time.Second

type liveRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type liveMessage struct {
	Type    string                     `json:"type"` // snapshot 或 error
	Year    int                        `json:"year,omitempty"`
	Month   int                        `json:"month,omitempty"`
	Seq     uint64                     `json:"seq,omitempty"`
	Summary *availability.MonthSummary `json:"summary,omitempty"`
	Message string                     `json:"message,omitempty"`
}

// liveConn 保证同一时间只有一个 goroutine 在写 websocket
type liveConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *liveConn) send(msg liveMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		slog.Warn("无法发送 websocket 消息", "error", err)
		return err
	}
	return nil
}

// LiveMonths 客户端每发送一次 {year, month} 就切换到对应的月份，
// 之后该月份的每次变化都会推送一份新的汇总
func (h *Handler) LiveMonths(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 失败时已经写好了响应
		slog.Warn("无法升级为 websocket 连接", "ip", r.RemoteAddr, "error", err)
		return
	}
	defer ws.Close()

	conn := &liveConn{conn: ws}
	user, _ := sessionUser(r.Context())

	// 请求的 context 在连接被接管后不一定会结束，这里自己管理
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	watcher := availability.NewMonthWatcher(h.store)
	defer watcher.Close()

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket 连接异常断开", "ip", r.RemoteAddr, "error", err)
			}
			return
		}

		var req liveRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			if conn.send(liveMessage{Type: "error", Message: "无法解析请求"}) != nil {
				return
			}
			continue
		}

		sub, err := watcher.Watch(ctx, req.Year, req.Month, func(u availability.MonthUpdate) {
			summary := availability.Summarize(u.Range, u.View, user.Name)
			_ = conn.send(liveMessage{
				Type:    "snapshot",
				Year:    u.Year,
				Month:   u.Month,
				Seq:     u.Seq,
				Summary: &summary,
			})
		})
		if err != nil {
			msg := err.Error()
			if errors.Is(err, domain.ErrStorageUnavailable) {
				msg = "无法读取数据，请检查网络连接"
			}
			if conn.send(liveMessage{Type: "error", Year: req.Year, Month: req.Month, Message: msg}) != nil {
				return
			}
			continue
		}

		go h.reportTermination(conn, req, sub)
	}
}

// reportTermination 在订阅因为错误而终止时通知客户端，客户端可以重新发送月份来恢复
func (h *Handler) reportTermination(conn *liveConn, req liveRequest, sub *live.Subscription) {
	<-sub.Done()

	err := sub.Err()
	if err == nil {
		return
	}
	slog.Warn("月份订阅已终止", "year", req.Year, "month", req.Month, "error", err)

	msg := "实时更新已中断，请重新加载"
	if errors.Is(err, domain.ErrStorageUnavailable) {
		msg = "实时更新已中断，请检查网络连接"
	}
	_ = conn.send(liveMessage{Type: "error", Year: req.Year, Month: req.Month, Message: msg})
}
