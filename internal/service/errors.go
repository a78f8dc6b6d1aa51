package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid         = errors.New("参数错误")
	ErrNotMember            = errors.New("不是会话成员")
	ErrConversationNotFound = errors.New("会话不存在")
	ErrMessageNotFound      = errors.New("消息不存在")
	ErrInvalidContentType   = errors.New("消息类型不合法")
	ErrInvalidBody          = errors.New("消息正文长度不合法")
	ErrInvalidMedia         = errors.New("媒体资源不可用")
	ErrInvalidReaction      = errors.New("表态内容不合法")
	ErrEditDenied           = errors.New("没有权限编辑该消息")
	ErrDeleteDenied         = errors.New("没有权限删除该消息")
	ErrReactionMissing      = errors.New("表态不存在")
	UnauthorizedError       = errors.New("权限不足")
	UnExpectedError         = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:         BadRequest,
	ErrNotMember:            Forbidden,
	ErrConversationNotFound: NotFound,
	ErrMessageNotFound:      NotFound,
	ErrInvalidContentType:   BadRequest,
	ErrInvalidBody:          BadRequest,
	ErrInvalidMedia:         BadRequest,
	ErrInvalidReaction:      BadRequest,
	ErrEditDenied:           Forbidden,
	ErrDeleteDenied:         Forbidden,
	ErrReactionMissing:      NotFound,
	UnauthorizedError:       Unauthorized,
	UnExpectedError:         InternalServerError,
}
