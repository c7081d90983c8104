package availability

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/utils"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelecting
	PhaseAwaitingVoteChoice
	PhaseCommitting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSelecting:
		return "selecting"
	case PhaseAwaitingVoteChoice:
		return "awaiting_vote_choice"
	case PhaseCommitting:
		return "committing"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

type VoteWriter interface {
	Write(ctx context.Context, date string, userName string, vote domain.Vote) error
}

type FailedDate struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

type CommitResult struct {
	Vote    domain.Vote  `json:"vote"`
	Written []string     `json:"written"`
	Failed  []FailedDate `json:"failed"`
}

// Selection 是选择日期到提交投票的状态机：
// Idle -> Selecting -> AwaitingVoteChoice -> Committing -> Idle
type Selection struct {
	writer      VoteWriter
	user        domain.User
	concurrency int

	mu    sync.Mutex
	phase Phase
	dates []string
}

// NewSelection 中 concurrency <= 0 表示所有日期同时写入
func NewSelection(writer VoteWriter, user domain.User, concurrency int) *Selection {
	return &Selection{
		writer:      writer,
		user:        user,
		concurrency: concurrency,
		phase:       PhaseIdle,
	}
}

func (s *Selection) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.phase
}

// Dates 返回已选日期的副本，按日期排序
func (s *Selection) Dates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.dates)
}

// Select 逐个累加日期（点击选择）
func (s *Selection) Select(dates ...string) error {
	for _, date := range dates {
		if err := utils.ValidateDate(date); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseIdle && s.phase != PhaseSelecting {
		return fmt.Errorf("%w: %s 状态下不能选择日期", domain.ErrInvalidTransition, s.phase)
	}

	for _, date := range dates {
		if i, found := slices.BinarySearch(s.dates, date); !found {
			s.dates = slices.Insert(s.dates, i, date)
		}
	}
	if len(s.dates) > 0 {
		s.phase = PhaseSelecting
	}

	return nil
}

// SelectRange 选择连续的一段日期（拖动或 shift 点击），两端都包含
func (s *Selection) SelectRange(from, to string) error {
	dates, err := utils.ExpandDates(from, to)
	if err != nil {
		return err
	}
	return s.Select(dates...)
}

func (s *Selection) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseSelecting:
		s.phase = PhaseAwaitingVoteChoice
		return nil
	case PhaseIdle:
		return domain.ErrEmptySelection
	default:
		return fmt.Errorf("%w: %s 状态下不能确认选择", domain.ErrInvalidTransition, s.phase)
	}
}

// Reset 放弃当前选择，提交过程中不能放弃
func (s *Selection) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseCommitting {
		return fmt.Errorf("%w: 正在提交", domain.ErrInvalidTransition)
	}
	s.phase = PhaseIdle
	s.dates = nil

	return nil
}

// Commit 为每个已选日期并发写入一次投票，等待全部结束后回到 Idle。
// 部分成功不会自动补偿，失败的日期需要用户重新选择后再提交
func (s *Selection) Commit(ctx context.Context, vote domain.Vote) (CommitResult, error) {
	s.mu.Lock()
	if s.phase != PhaseAwaitingVoteChoice {
		phase := s.phase
		s.mu.Unlock()
		return CommitResult{}, fmt.Errorf("%w: %s 状态下不能提交", domain.ErrInvalidTransition, phase)
	}
	if !vote.Valid() {
		s.mu.Unlock()
		return CommitResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidVote, string(vote))
	}
	s.phase = PhaseCommitting
	dates := slices.Clone(s.dates)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.phase = PhaseIdle
		s.dates = nil
		s.mu.Unlock()
	}()

	errs := make([]error, len(dates))
	var g errgroup.Group
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for i, date := range dates {
		g.Go(func() error {
			errs[i] = s.writer.Write(ctx, date, s.user.Name, vote)
			return nil
		})
	}
	_ = g.Wait()

	result := CommitResult{
		Vote:    vote,
		Written: make([]string, 0, len(dates)),
		Failed:  make([]FailedDate, 0),
	}
	failures := make([]error, 0)
	for i, date := range dates {
		if errs[i] != nil {
			result.Failed = append(result.Failed, FailedDate{Date: date, Error: errs[i].Error()})
			failures = append(failures, fmt.Errorf("%s: %w", date, errs[i]))
			continue
		}
		result.Written = append(result.Written, date)
	}

	return result, errors.Join(failures...)
}
