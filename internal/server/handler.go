package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/auth"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/service"
)

// Handler 聚合 REST 侧的 handler，依赖注入 service 层。实时流量走
// WebSocket，这里只暴露未读数与在线列表这类查询接口。
type Handler struct {
	presenceSvc *service.PresenceService
	unreadSvc   *service.UnreadService
}

func NewHandler(presenceSvc *service.PresenceService, unreadSvc *service.UnreadService) *Handler {
	return &Handler{presenceSvc: presenceSvc, unreadSvc: unreadSvc}
}

// ListOnline 返回当前在线用户及其状态。
func (h *Handler) ListOnline(c *gin.Context) {
	rows, err := h.presenceSvc.ListOnline()
	if err != nil {
		log.Error().Err(err).Msg("list online users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list online users"})
		return
	}
	type presenceDTO struct {
		UserID        uint      `json:"user_id"`
		StatusMessage string    `json:"status_message"`
		LastActivity  time.Time `json:"last_activity"`
	}
	out := make([]presenceDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, presenceDTO{UserID: r.UserID, StatusMessage: r.StatusMessage, LastActivity: r.LastActivity})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// ListUnread 返回调用者全部频道的未读数。
func (h *Handler) ListUnread(c *gin.Context) {
	counts, err := h.unreadSvc.Counts(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("list unread counts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list unread counts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": counts})
}

// ChannelUnread 返回调用者在单个频道的未读数，非成员返回 403。
func (h *Handler) ChannelUnread(c *gin.Context) {
	channelID, err := strconv.Atoi(c.Param("id"))
	if err != nil || channelID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}
	count, err := h.unreadSvc.Count(uint(channelID), auth.GetUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrNotChannelMember) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Not a channel member"})
			return
		}
		log.Error().Err(err).Int("channel_id", channelID).Msg("channel unread count")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": channelID, "unread": count})
}
