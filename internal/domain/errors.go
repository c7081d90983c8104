package domain

import "errors"

var (
	ErrInvalidVote        = errors.New("无效的投票")
	ErrInvalidDate        = errors.New("无效的日期")
	ErrInvalidMonth       = errors.New("无效的月份")
	ErrInvalidUser        = errors.New("无效的用户名")
	ErrStorageUnavailable = errors.New("存储不可用")
	ErrMalformedRecord    = errors.New("记录格式错误")
	ErrEmptySelection     = errors.New("没有选择任何日期")
	ErrInvalidTransition  = errors.New("当前状态不允许该操作")
	ErrSubscriptionClosed = errors.New("订阅已关闭")
)
