package domain

import (
	"maps"
	"time"
)

// Votes 是某一天中用户名到投票的映射，用户名区分大小写
type Votes map[string]Vote

func (v Votes) Clone() Votes {
	if v == nil {
		return Votes{}
	}
	return maps.Clone(v)
}

// DateRecord 是按日期存储的投票文档，只有当天至少有一人投票时才存在
type DateRecord struct {
	Date      string    `json:"date"`
	Votes     Votes     `json:"votes"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r DateRecord) Clone() DateRecord {
	return DateRecord{
		Date:      r.Date,
		Votes:     r.Votes.Clone(),
		UpdatedAt: r.UpdatedAt,
	}
}

// MonthView 是某个月份窗口内日期到投票的映射，只在内存中派生
type MonthView map[string]Votes

// DateRange 是左闭右开的日期区间 [Start, End)，按字符串字典序比较
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r DateRange) Contains(date string) bool {
	return date >= r.Start && date < r.End
}

// ChangeEvent 在每次写入成功后发布，订阅者只依赖 Date
type ChangeEvent struct {
	Date      string    `json:"date"`
	User      string    `json:"user"`
	Vote      Vote      `json:"vote"`
	UpdatedAt time.Time `json:"updatedAt"`
}
