package service

import "errors"

// 业务层通用错误，上层按错误类型映射为出站 error 事件或 HTTP 状态码。
var (
	ErrMissingFields        = errors.New("missing required fields")
	ErrNotChannelMember     = errors.New("not a channel member")
	ErrMessageNotFound      = errors.New("message not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrReactionTypeRequired = errors.New("reaction type required")
	ErrReactionTarget       = errors.New("message id required")
	ErrReactionExists       = errors.New("reaction already exists")
	ErrReactionNotFound     = errors.New("reaction not found")
)
