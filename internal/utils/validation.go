package utils

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
)

const (
	DateLayout        = "2006-01-02"
	MaxUserNameLength = 50
)

// ValidateDate 检查日期是否为合法的 YYYY-MM-DD 字符串，并且是真实存在的日期
func ValidateDate(date string) error {
	if len(date) != len(DateLayout) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidDate, date)
	}
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return fmt.Errorf("%w: %q", domain.ErrInvalidDate, date)
	}
	// 格式化回来再比较一次，排除带空格等非规范写法
	if t.Format(DateLayout) != date {
		return fmt.Errorf("%w: %q", domain.ErrInvalidDate, date)
	}
	return nil
}

func ValidateDateRange(r domain.DateRange) error {
	if err := ValidateDate(r.Start); err != nil {
		return err
	}
	if err := ValidateDate(r.End); err != nil {
		return err
	}
	if r.End < r.Start {
		return fmt.Errorf("%w: 结束日期 %s 早于开始日期 %s", domain.ErrInvalidDate, r.End, r.Start)
	}
	return nil
}

// ValidateUserName 只检查名字是否可用，不改变名字本身
func ValidateUserName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: 用户名不能为空", domain.ErrInvalidUser)
	}
	if utf8.RuneCountInString(name) > MaxUserNameLength {
		return fmt.Errorf("%w: 用户名不能超过 %d 个字符", domain.ErrInvalidUser, MaxUserNameLength)
	}
	return nil
}

// NormalizeUserName 去掉首尾空白，名字本身区分大小写，不做其他规范化
func NormalizeUserName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := ValidateUserName(name); err != nil {
		return "", err
	}
	return name, nil
}

// UserCode 取名字的第一个字符并转成大写
func UserCode(name string) string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(name))
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}

// ExpandDates 返回 [from, to] 之间的所有日期（两端都包含），from 和 to 的先后顺序不影响结果
func ExpandDates(from, to string) ([]string, error) {
	if err := ValidateDate(from); err != nil {
		return nil, err
	}
	if err := ValidateDate(to); err != nil {
		return nil, err
	}
	if to < from {
		from, to = to, from
	}

	start, _ := time.Parse(DateLayout, from)
	end, _ := time.Parse(DateLayout, to)

	dates := make([]string, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, nil
}

// CountDates 返回 [from, to] 之间的天数（两端都包含），不展开日期
func CountDates(from, to string) (int, error) {
	if err := ValidateDate(from); err != nil {
		return 0, err
	}
	if err := ValidateDate(to); err != nil {
		return 0, err
	}
	if to < from {
		from, to = to, from
	}

	start, _ := time.Parse(DateLayout, from)
	end, _ := time.Parse(DateLayout, to)
	return int(end.Sub(start).Hours()/24) + 1, nil
}

// DayRange 返回只包含 date 这一天的区间
func DayRange(date string) (domain.DateRange, error) {
	if err := ValidateDate(date); err != nil {
		return domain.DateRange{}, err
	}
	t, _ := time.Parse(DateLayout, date)
	return domain.DateRange{Start: date, End: t.AddDate(0, 0, 1).Format(DateLayout)}, nil
}
