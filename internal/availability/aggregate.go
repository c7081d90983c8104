package availability

import (
	"slices"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
)

// Score 有空 +1，没空 -1，不确定不计分
func Score(votes domain.Votes) int {
	score := 0
	for _, v := range votes {
		score += v.Weight()
	}
	return score
}

// Roster 按投票把用户分组，三个分组总是存在，没投票的用户不出现在任何分组中
type Roster map[domain.Vote][]string

func RosterByVote(votes domain.Votes) Roster {
	roster := make(Roster, len(domain.AllVotes))
	for _, v := range domain.AllVotes {
		roster[v] = []string{}
	}

	for user, v := range votes {
		if _, ok := roster[v]; ok {
			roster[v] = append(roster[v], user)
		}
	}
	for _, users := range roster {
		slices.Sort(users)
	}

	return roster
}

// VotersInMonth 返回去重后按字典序排列的所有投票人
func VotersInMonth(view domain.MonthView) []string {
	seen := make(map[string]struct{})
	for _, votes := range view {
		for user := range votes {
			seen[user] = struct{}{}
		}
	}

	voters := make([]string, 0, len(seen))
	for user := range seen {
		voters = append(voters, user)
	}
	slices.Sort(voters)

	return voters
}

func NewMonthView(records []domain.DateRecord) domain.MonthView {
	view := make(domain.MonthView, len(records))
	for _, r := range records {
		view[r.Date] = r.Votes
	}
	return view
}

type Tone string

const (
	ToneNone     Tone = "none"
	ToneStrong   Tone = "strong"
	TonePositive Tone = "positive"
	ToneNeutral  Tone = "neutral"
	ToneNegative Tone = "negative"
)

// ToneOf 决定日历格子的颜色档位
func ToneOf(score int, hasVotes bool) Tone {
	switch {
	case !hasVotes:
		return ToneNone
	case score > 5:
		return ToneStrong
	case score > 0:
		return TonePositive
	case score == 0:
		return ToneNeutral
	default:
		return ToneNegative
	}
}

type DaySummary struct {
	Date      string `json:"date"`
	Score     int    `json:"score"`
	Tone      Tone   `json:"tone"`
	Roster    Roster `json:"roster"`
	VotedByMe bool   `json:"votedByMe"`
}

type MonthSummary struct {
	Range  domain.DateRange `json:"range"`
	Days   []DaySummary     `json:"days"`
	Voters []string         `json:"voters"`
}

// SummarizeDay 中的 user 为空表示不关心当前用户
func SummarizeDay(date string, votes domain.Votes, user string) DaySummary {
	score := Score(votes)
	_, voted := votes[user]

	return DaySummary{
		Date:      date,
		Score:     score,
		Tone:      ToneOf(score, len(votes) > 0),
		Roster:    RosterByVote(votes),
		VotedByMe: user != "" && voted,
	}
}

// Summarize 只包含有投票的日期，按日期排序
func Summarize(dr domain.DateRange, view domain.MonthView, user string) MonthSummary {
	dates := make([]string, 0, len(view))
	for date := range view {
		if dr.Contains(date) {
			dates = append(dates, date)
		}
	}
	slices.Sort(dates)

	days := make([]DaySummary, 0, len(dates))
	for _, date := range dates {
		days = append(days, SummarizeDay(date, view[date], user))
	}

	return MonthSummary{
		Range:  dr,
		Days:   days,
		Voters: VotersInMonth(view),
	}
}
