package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/qunqun-dev/date-poll/backend/internal/availability"
	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/session"
	"github.com/qunqun-dev/date-poll/backend/internal/utils"
)

type Options struct {
	Voters      int
	Year        int
	Month       int
	Density     float64 // 每个人在每一天投票的概率
	Concurrency int
}

type Result struct {
	Voters  []string
	Written int
	Failed  int
}

// SeedRandomMonth 为指定月份生成随机的投票者和投票，和前端一样通过选择日期再提交的方式写入
func SeedRandomMonth(ctx context.Context, w availability.VoteWriter, opts Options) (Result, error) {
	if opts.Voters <= 0 {
		return Result{}, errors.New("投票人数必须大于 0")
	}
	if opts.Density < 0 || opts.Density > 1 {
		return Result{}, errors.New("投票密度必须在 0 到 1 之间")
	}

	dr, err := availability.MonthRange(opts.Year, opts.Month)
	if err != nil {
		return Result{}, err
	}
	// 区间是左闭右开的，ExpandDates 两端都包含，所以去掉最后一天
	dates, err := utils.ExpandDates(dr.Start, dr.End)
	if err != nil {
		return Result{}, err
	}
	dates = dates[:len(dates)-1]

	result := Result{Voters: utils.GenerateRandomVoterNames(opts.Voters)}
	for _, name := range result.Voters {
		ballot := make(map[domain.Vote][]string)
		for _, date := range dates {
			if rand.Float64() < opts.Density {
				vote := utils.GenerateRandomVote()
				ballot[vote] = append(ballot[vote], date)
			}
		}

		written, failed, err := commitBallot(ctx, w, name, ballot, opts.Concurrency)
		if err != nil {
			return result, err
		}
		result.Written += written
		result.Failed += failed
	}

	return result, nil
}

// ImportCSV 导入表格形式的投票：第一列是名字，其余列的表头是日期，单元格是 O、V、X 或留空
func ImportCSV(ctx context.Context, w availability.VoteWriter, r io.Reader, concurrency int) (Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	// 读取表头
	headers, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("读取表头失败: %w", err)
	}
	if len(headers) < 2 {
		return Result{}, errors.New("表头至少需要名字列和一个日期列")
	}
	for _, date := range headers[1:] {
		if err := utils.ValidateDate(date); err != nil {
			return Result{}, fmt.Errorf("表头中的日期不合法: %w", err)
		}
	}

	result := Result{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return result, fmt.Errorf("读取第 %d 行失败: %w", line, err)
		}

		name := row[0]
		ballot := make(map[domain.Vote][]string)
		for i, cell := range row[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}

			vote, err := domain.ParseVote(strings.ToUpper(cell))
			if err != nil {
				slog.Warn("跳过无法识别的投票", "line", line, "date", headers[i+1], "value", cell)
				continue
			}
			ballot[vote] = append(ballot[vote], headers[i+1])
		}

		written, failed, err := commitBallot(ctx, w, name, ballot, concurrency)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidUser) {
				slog.Warn("跳过名字不合法的行", "line", line, "name", name)
				continue
			}
			return result, err
		}
		result.Voters = append(result.Voters, strings.TrimSpace(name))
		result.Written += written
		result.Failed += failed
	}

	return result, nil
}

// commitBallot 按投票种类分组提交，部分失败只记录日志
func commitBallot(ctx context.Context, w availability.VoteWriter, name string, ballot map[domain.Vote][]string, concurrency int) (int, int, error) {
	user, err := session.NewUser(name)
	if err != nil {
		return 0, 0, err
	}

	written, failed := 0, 0
	for _, vote := range domain.AllVotes {
		dates := ballot[vote]
		if len(dates) == 0 {
			continue
		}

		sel := availability.NewSelection(w, user, concurrency)
		if err := sel.Select(dates...); err != nil {
			return written, failed, err
		}
		if err := sel.Finalize(); err != nil {
			return written, failed, err
		}

		res, err := sel.Commit(ctx, vote)
		if err != nil {
			slog.Error("部分投票写入失败", "user", user.Name, "vote", vote, "failed", len(res.Failed), "error", err)
		}
		written += len(res.Written)
		failed += len(res.Failed)
	}

	return written, failed, nil
}
