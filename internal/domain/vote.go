package domain

import "fmt"

// Vote 是某个用户对某一天的表态
type Vote string

const (
	VoteAvailable   Vote = "O"
	VoteTentative   Vote = "V"
	VoteUnavailable Vote = "X"
)

// AllVotes 按展示顺序列出所有合法的投票
var AllVotes = []Vote{VoteAvailable, VoteTentative, VoteUnavailable}

func (v Vote) Valid() bool {
	switch v {
	case VoteAvailable, VoteTentative, VoteUnavailable:
		return true
	}
	return false
}

// Weight 是该投票对当天分数的贡献
func (v Vote) Weight() int {
	switch v {
	case VoteAvailable:
		return 1
	case VoteUnavailable:
		return -1
	}
	return 0
}

func (v Vote) Label() string {
	switch v {
	case VoteAvailable:
		return "有空"
	case VoteTentative:
		return "不确定"
	case VoteUnavailable:
		return "没空"
	}
	return string(v)
}

func ParseVote(s string) (Vote, error) {
	v := Vote(s)
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidVote, s)
	}
	return v, nil
}
