package service

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/models"
)

// MessageService 负责两类消息的落库与读回执；投递本身由 ws 层完成。
type MessageService struct {
	db    *gorm.DB
	rooms *RoomService
}

func NewMessageService(db *gorm.DB, rooms *RoomService) *MessageService {
	return &MessageService{db: db, rooms: rooms}
}

// KitMessageInput 是 kit_message 事件携带的字段；RecipientID 为空表示
// 广播给该 kit 的所有关注者。
type KitMessageInput struct {
	KitID           uint
	RecipientID     *uint
	Subject         string
	Message         string
	ParentMessageID *uint
	Attachments     models.StringList
}

// CreateKitMessage 校验必填字段后落库，校验失败不产生任何写入。
func (s *MessageService) CreateKitMessage(senderID uint, in KitMessageInput) (*models.KitMessage, error) {
	if in.KitID == 0 || in.Subject == "" || in.Message == "" {
		return nil, ErrMissingFields
	}
	msg := models.KitMessage{
		KitID:           in.KitID,
		SenderID:        senderID,
		RecipientID:     in.RecipientID,
		Subject:         in.Subject,
		Message:         in.Message,
		ParentMessageID: in.ParentMessageID,
		Attachments:     in.Attachments,
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkKitMessageRead 只允许 recipient 本人确认收到；发送者确认自己的
// 消息同样按越权处理。成功时恰好设置一次 is_read/read_date。
func (s *MessageService) MarkKitMessageRead(callerID, messageID uint) (*models.KitMessage, error) {
	var msg models.KitMessage
	if err := s.db.First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if msg.RecipientID == nil || *msg.RecipientID != callerID {
		return nil, ErrUnauthorized
	}
	// 重复确认不改写 read_date，保持首次确认的时间戳。
	if msg.IsRead {
		return &msg, nil
	}
	now := time.Now()
	if err := s.db.Model(&msg).Updates(map[string]interface{}{
		"is_read":   true,
		"read_date": now,
	}).Error; err != nil {
		return nil, err
	}
	msg.IsRead = true
	msg.ReadDate = &now
	return &msg, nil
}

// CreateChannelMessage 先做成员校验再写入，拒绝时不产生任何行。
func (s *MessageService) CreateChannelMessage(senderID, channelID uint, text string, parentID *uint) (*models.ChannelMessage, error) {
	if channelID == 0 || text == "" {
		return nil, ErrMissingFields
	}
	ok, err := s.rooms.IsMember(channelID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotChannelMember
	}
	msg := models.ChannelMessage{
		ChannelID:       channelID,
		SenderID:        senderID,
		Message:         text,
		ParentMessageID: parentID,
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}
