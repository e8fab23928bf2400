package ws

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/auth"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/config"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/metrics"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/models"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/service"
)

// Gateway 把入站事件分发到各业务服务，并负责广播扇出。
type Gateway struct {
	hub       *Hub
	cfg       config.Config
	presence  *service.PresenceService
	rooms     *service.RoomService
	messages  *service.MessageService
	reactions *service.ReactionService
}

func NewGateway(db *gorm.DB, hub *Hub, cfg config.Config) *Gateway {
	rooms := service.NewRoomService(db)
	return &Gateway{
		hub:       hub,
		cfg:       cfg,
		presence:  service.NewPresenceService(db),
		rooms:     rooms,
		messages:  service.NewMessageService(db, rooms),
		reactions: service.NewReactionService(db),
	}
}

// Serve 处理 WebSocket 握手：连接本身也要带凭证，校验失败直接拒绝升级。
func (g *Gateway) Serve() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := auth.ParseAccessToken(auth.BearerToken(c), g.cfg.JWTSecret)
		if err != nil {
			c.JSON(401, gin.H{"error": auth.ErrorMessage(err)})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			hub:    g.hub,
			conn:   conn,
			send:   make(chan []byte, 256),
			userID: claims.UserID,
			handle: uuid.NewString(),
		}
		g.connect(client)
		go client.writePump()
		client.readPump(g)
	}
}

// connect 初始化连接状态：登记进 Hub，加入个人房间，按连接时刻的
// 成员关系快照加入所属频道房间，最后全局广播 user_online。
func (g *Gateway) connect(c *Client) {
	g.hub.Register(c)
	g.hub.Join(UserRoom(c.userID), c)

	channelIDs, err := g.rooms.ChannelIDs(c.userID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", c.userID).Msg("connect: load channel memberships")
	}
	for _, id := range channelIDs {
		g.hub.Join(ChannelRoom(id), c)
	}

	if err := g.presence.SetOnline(c.userID, c.handle); err != nil {
		log.Error().Err(err).Uint("user_id", c.userID).Msg("connect: presence online")
	}
	g.hub.BroadcastAll(payload("user_online", map[string]interface{}{"user_id": c.userID}))
}

// disconnect 是尽力而为路径：传输层已经关闭，任何失败只记日志。
func (g *Gateway) disconnect(c *Client) {
	g.hub.Unregister(c)
	existed, err := g.presence.SetOffline(c.userID)
	if err != nil {
		log.Warn().Err(err).Uint("user_id", c.userID).Msg("disconnect: presence offline")
		return
	}
	if existed {
		g.hub.BroadcastAll(payload("user_offline", map[string]interface{}{"user_id": c.userID}))
	}
}

// dispatch 逐事件重新鉴权后再进入对应 handler；令牌中途过期只令后续
// 事件失败，不影响已经建立的连接。
func (g *Gateway) dispatch(c *Client, data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.replyError("Invalid payload")
		return
	}
	metrics.WsEventsTotal.WithLabelValues(ev.Type).Inc()

	claims, err := auth.ParseAccessToken(ev.Token, g.cfg.JWTSecret)
	if err != nil {
		c.replyError(auth.ErrorMessage(err))
		return
	}
	userID := claims.UserID

	switch ev.Type {
	case "kit_message":
		g.handleKitMessage(c, userID, ev)
	case "mark_kit_message_read":
		g.handleMarkKitMessageRead(c, userID, ev)
	case "channel_message":
		g.handleChannelMessage(c, userID, ev)
	case "join_channel":
		g.handleJoinChannel(c, userID, ev)
	case "leave_channel":
		g.handleLeaveChannel(c, userID, ev)
	case "typing_start":
		g.handleTyping(c, userID, ev, true)
	case "typing_stop":
		g.handleTyping(c, userID, ev, false)
	case "add_reaction":
		g.handleAddReaction(c, userID, ev)
	case "remove_reaction":
		g.handleRemoveReaction(c, userID, ev)
	case "update_status":
		g.handleUpdateStatus(c, userID, ev)
	case "ping":
		g.handlePing(c, userID)
	default:
		c.replyError("Unknown event type")
	}
}

func (g *Gateway) handleKitMessage(c *Client, userID uint, ev Event) {
	msg, err := g.messages.CreateKitMessage(userID, service.KitMessageInput{
		KitID:           ev.KitID,
		RecipientID:     ev.RecipientID,
		Subject:         ev.Subject,
		Message:         ev.Message,
		ParentMessageID: ev.ParentMessageID,
		Attachments:     models.StringList(ev.Attachments),
	})
	if err != nil {
		if !errors.Is(err, service.ErrMissingFields) {
			log.Error().Err(err).Uint("user_id", userID).Uint("kit_id", ev.KitID).Msg("create kit message")
		}
		c.replyError(clientMessage(err, "Failed to send message"))
		return
	}
	metrics.MessagesTotal.WithLabelValues("kit").Inc()
	c.reply("kit_message_sent", map[string]interface{}{"message_id": msg.ID, "kit_id": msg.KitID})

	// 有接收者时额外送一份到其个人房间，直达投递不依赖对方订阅 kit 房间。
	body := kitMessageFields(msg)
	if msg.RecipientID != nil {
		body["broadcast"] = false
		out := payload("new_kit_message", body)
		g.hub.Broadcast(KitRoom(msg.KitID), out)
		g.hub.Broadcast(UserRoom(*msg.RecipientID), out)
		return
	}
	body["broadcast"] = true
	g.hub.Broadcast(KitRoom(msg.KitID), payload("new_kit_message", body))
}

func (g *Gateway) handleMarkKitMessageRead(c *Client, userID uint, ev Event) {
	msg, err := g.messages.MarkKitMessageRead(userID, ev.MessageID)
	if err != nil {
		if !errors.Is(err, service.ErrMessageNotFound) && !errors.Is(err, service.ErrUnauthorized) {
			log.Error().Err(err).Uint("user_id", userID).Uint("message_id", ev.MessageID).Msg("mark kit message read")
		}
		c.replyError(clientMessage(err, "Failed to mark message read"))
		return
	}
	g.hub.Broadcast(UserRoom(msg.SenderID), payload("kit_message_read", map[string]interface{}{
		"message_id": msg.ID,
		"reader_id":  userID,
		"read_date":  msg.ReadDate,
	}))
	c.reply("message_marked_read", map[string]interface{}{"message_id": msg.ID})
}

func (g *Gateway) handleChannelMessage(c *Client, userID uint, ev Event) {
	msg, err := g.messages.CreateChannelMessage(userID, ev.ChannelID, ev.Message, ev.ParentMessageID)
	if err != nil {
		if !errors.Is(err, service.ErrMissingFields) && !errors.Is(err, service.ErrNotChannelMember) {
			log.Error().Err(err).Uint("user_id", userID).Uint("channel_id", ev.ChannelID).Msg("create channel message")
		}
		c.replyError(clientMessage(err, "Failed to send message"))
		return
	}
	metrics.MessagesTotal.WithLabelValues("channel").Inc()
	g.hub.Broadcast(ChannelRoom(msg.ChannelID), payload("new_channel_message", map[string]interface{}{
		"id":                msg.ID,
		"channel_id":        msg.ChannelID,
		"sender_id":         msg.SenderID,
		"message":           msg.Message,
		"parent_message_id": msg.ParentMessageID,
		"sent_date":         msg.SentDate,
	}))
}

func (g *Gateway) handleJoinChannel(c *Client, userID uint, ev Event) {
	if ev.ChannelID == 0 {
		c.replyError("Missing required fields")
		return
	}
	ok, err := g.rooms.IsMember(ev.ChannelID, userID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", userID).Uint("channel_id", ev.ChannelID).Msg("join channel membership check")
	}
	if err != nil || !ok {
		c.replyError("Failed to join channel")
		return
	}
	room := ChannelRoom(ev.ChannelID)
	g.hub.Join(room, c)
	c.reply("channel_joined", map[string]interface{}{"channel_id": ev.ChannelID})
	g.hub.BroadcastExcept(room, c, payload("user_joined_channel", map[string]interface{}{
		"channel_id": ev.ChannelID,
		"user_id":    userID,
	}))
}

// handleLeaveChannel 不做成员校验，对任何频道 ID 都成功。
func (g *Gateway) handleLeaveChannel(c *Client, userID uint, ev Event) {
	if ev.ChannelID == 0 {
		c.replyError("Missing required fields")
		return
	}
	room := ChannelRoom(ev.ChannelID)
	g.hub.Leave(room, c)
	c.reply("channel_left", map[string]interface{}{"channel_id": ev.ChannelID})
	g.hub.Broadcast(room, payload("user_left_channel", map[string]interface{}{
		"channel_id": ev.ChannelID,
		"user_id":    userID,
	}))
}

// handleTyping 是纯转发：不落库，两个目标 ID 都缺失时静默丢弃。
func (g *Gateway) handleTyping(c *Client, userID uint, ev Event, typing bool) {
	room, fields, ok := ev.TypingTarget()
	if !ok {
		return
	}
	fields["user_id"] = userID
	fields["typing"] = typing
	g.hub.Broadcast(room, payload("user_typing", fields))
}

func (g *Gateway) handleAddReaction(c *Client, userID uint, ev Event) {
	notice, err := g.reactions.Add(userID, ev.ReactionRef(), ev.ReactionType)
	if err != nil {
		if isStoreError(err) {
			log.Error().Err(err).Uint("user_id", userID).Msg("add reaction")
		}
		c.replyError(clientMessage(err, "Failed to add reaction"))
		return
	}
	metrics.ReactionsTotal.Inc()
	g.notifyReaction("reaction_added", notice)
	c.reply("reaction_added_confirm", map[string]interface{}{"reaction_id": notice.Reaction.ID})
}

func (g *Gateway) handleRemoveReaction(c *Client, userID uint, ev Event) {
	notice, err := g.reactions.Remove(userID, ev.ReactionID)
	if err != nil {
		if isStoreError(err) {
			log.Error().Err(err).Uint("user_id", userID).Uint("reaction_id", ev.ReactionID).Msg("remove reaction")
		}
		c.replyError(clientMessage(err, "Failed to remove reaction"))
		return
	}
	g.notifyReaction("reaction_removed", notice)
	c.reply("reaction_removed_confirm", map[string]interface{}{"reaction_id": notice.Reaction.ID})
}

// notifyReaction 按目标类型扇出：频道消息通知频道房间；kit 消息通知
// 发送者个人房间，接收者存在且不同时再通知接收者房间。
func (g *Gateway) notifyReaction(event string, notice *service.ReactionNotice) {
	fields := map[string]interface{}{
		"reaction_id":   notice.Reaction.ID,
		"user_id":       notice.Reaction.UserID,
		"reaction_type": notice.Reaction.ReactionType,
	}
	switch notice.Ref.Kind {
	case service.MessageKindChannel:
		fields["channel_message_id"] = notice.Ref.ID
		g.hub.Broadcast(ChannelRoom(notice.ChannelID), payload(event, fields))
	case service.MessageKindKit:
		fields["kit_message_id"] = notice.Ref.ID
		out := payload(event, fields)
		g.hub.Broadcast(UserRoom(notice.SenderID), out)
		if notice.RecipientID != nil && *notice.RecipientID != notice.SenderID {
			g.hub.Broadcast(UserRoom(*notice.RecipientID), out)
		}
	}
}

func (g *Gateway) handleUpdateStatus(c *Client, userID uint, ev Event) {
	if err := g.presence.SetStatus(userID, ev.StatusMessage); err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("update status")
		c.replyError("Failed to update status")
		return
	}
	g.hub.BroadcastAll(payload("status_updated", map[string]interface{}{
		"user_id":        userID,
		"status_message": ev.StatusMessage,
	}))
	c.reply("status_update_confirm", map[string]interface{}{"status_message": ev.StatusMessage})
}

// handlePing 总是回 pong，presence 行不存在或更新失败也不拦截。
func (g *Gateway) handlePing(c *Client, userID uint) {
	if err := g.presence.Touch(userID); err != nil {
		log.Warn().Err(err).Uint("user_id", userID).Msg("ping touch presence")
	}
	c.reply("pong", map[string]interface{}{"timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func kitMessageFields(msg *models.KitMessage) map[string]interface{} {
	return map[string]interface{}{
		"id":                msg.ID,
		"kit_id":            msg.KitID,
		"sender_id":         msg.SenderID,
		"recipient_id":      msg.RecipientID,
		"subject":           msg.Subject,
		"message":           msg.Message,
		"parent_message_id": msg.ParentMessageID,
		"sent_date":         msg.SentDate,
		"attachments":       msg.Attachments,
	}
}

// clientMessage 把业务错误映射为对客户端可见的文案；存储层错误一律
// 用泛化文案，不向客户端暴露内部细节。
func clientMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, service.ErrMissingFields):
		return "Missing required fields"
	case errors.Is(err, service.ErrNotChannelMember):
		return "Not a channel member"
	case errors.Is(err, service.ErrMessageNotFound):
		return "Message not found"
	case errors.Is(err, service.ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, service.ErrReactionTypeRequired):
		return "Reaction type required"
	case errors.Is(err, service.ErrReactionTarget):
		return "Message ID required"
	case errors.Is(err, service.ErrReactionExists):
		return "Reaction already exists"
	case errors.Is(err, service.ErrReactionNotFound):
		return "Reaction not found"
	default:
		return fallback
	}
}

func isStoreError(err error) bool {
	return !errors.Is(err, service.ErrMissingFields) &&
		!errors.Is(err, service.ErrNotChannelMember) &&
		!errors.Is(err, service.ErrMessageNotFound) &&
		!errors.Is(err, service.ErrUnauthorized) &&
		!errors.Is(err, service.ErrReactionTypeRequired) &&
		!errors.Is(err, service.ErrReactionTarget) &&
		!errors.Is(err, service.ErrReactionExists) &&
		!errors.Is(err, service.ErrReactionNotFound)
}
