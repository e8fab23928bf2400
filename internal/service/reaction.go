package service

import (
	"errors"

	"gorm.io/gorm"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/models"
)

// ReactionService 维护表情回应，保证每个 (user, message) 组合至多一条，
// 与 reaction_type 无关。
type ReactionService struct {
	db *gorm.DB
}

func NewReactionService(db *gorm.DB) *ReactionService {
	return &ReactionService{db: db}
}

// ReactionNotice 汇总一次增删需要通知的目标：频道消息通知频道房间，
// kit 消息通知发送者（以及存在且不同的接收者）的个人房间。
type ReactionNotice struct {
	Reaction    *models.MessageReaction
	Ref         MessageRef
	ChannelID   uint  // Ref.Kind == MessageKindChannel 时有效
	SenderID    uint  // Ref.Kind == MessageKindKit 时有效
	RecipientID *uint // kit 消息的接收者，可能为空
}

// Add 插入一条回应。同一用户对同一条消息已有任何类型的回应时拒绝。
func (s *ReactionService) Add(userID uint, ref MessageRef, reactionType string) (*ReactionNotice, error) {
	if reactionType == "" {
		return nil, ErrReactionTypeRequired
	}
	if ref.Zero() {
		return nil, ErrReactionTarget
	}
	notice, err := s.loadTarget(ref)
	if err != nil {
		return nil, err
	}

	var existing models.MessageReaction
	err = s.targetScope(ref).Where("user_id = ?", userID).First(&existing).Error
	if err == nil {
		return nil, ErrReactionExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	row := models.MessageReaction{UserID: userID, ReactionType: reactionType}
	switch ref.Kind {
	case MessageKindChannel:
		row.ChannelMessageID = &ref.ID
	case MessageKindKit:
		row.KitMessageID = &ref.ID
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	notice.Reaction = &row
	return notice, nil
}

// Remove 删除一条回应，仅限其属主操作。
func (s *ReactionService) Remove(userID, reactionID uint) (*ReactionNotice, error) {
	var row models.MessageReaction
	if err := s.db.First(&row, reactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReactionNotFound
		}
		return nil, err
	}
	if row.UserID != userID {
		return nil, ErrUnauthorized
	}

	ref := refOf(&row)
	notice, err := s.loadTarget(ref)
	if err != nil {
		return nil, err
	}
	if err := s.db.Delete(&row).Error; err != nil {
		return nil, err
	}
	notice.Reaction = &row
	return notice, nil
}

// refOf 从已有行的两个可空外键还原目标引用。
func refOf(row *models.MessageReaction) MessageRef {
	if row.ChannelMessageID != nil {
		return MessageRef{Kind: MessageKindChannel, ID: *row.ChannelMessageID}
	}
	if row.KitMessageID != nil {
		return MessageRef{Kind: MessageKindKit, ID: *row.KitMessageID}
	}
	return MessageRef{}
}

func (s *ReactionService) targetScope(ref MessageRef) *gorm.DB {
	if ref.Kind == MessageKindChannel {
		return s.db.Where("channel_message_id = ?", ref.ID)
	}
	return s.db.Where("kit_message_id = ?", ref.ID)
}

// loadTarget 取出被回应的消息，算出通知目标。消息不存在时拒绝。
func (s *ReactionService) loadTarget(ref MessageRef) (*ReactionNotice, error) {
	switch ref.Kind {
	case MessageKindChannel:
		var msg models.ChannelMessage
		if err := s.db.First(&msg, ref.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrMessageNotFound
			}
			return nil, err
		}
		return &ReactionNotice{Ref: ref, ChannelID: msg.ChannelID}, nil
	case MessageKindKit:
		var msg models.KitMessage
		if err := s.db.First(&msg, ref.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrMessageNotFound
			}
			return nil, err
		}
		return &ReactionNotice{Ref: ref, SenderID: msg.SenderID, RecipientID: msg.RecipientID}, nil
	default:
		return nil, ErrReactionTarget
	}
}
