package utils

import (
	"math/rand"
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
	"github.com/qunqun-dev/date-poll/backend/internal/domain"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "霞", "飞", "玲", "超",
	"华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌", "庆",
	"建", "丹", "彬", "凤", "旭", "宁", "乐", "成", "欣", "群",
}

func GenerateRandomChineseName() string {
	surname := commonSurnames[rand.Intn(len(commonSurnames))]
	nameLength := rand.Intn(2) + 1
	name := ""

	for i := 0; i < nameLength; i++ {
		name += commonNameCharacters[rand.Intn(len(commonNameCharacters))]
	}
	return surname + name
}

// RomanizeChineseName 把中文名字转成拼音写法，例如 "王小明" -> "Wang Xiaoming"
func RomanizeChineseName(chineseName string) string {
	syllables := pinyin.LazyConvert(chineseName, nil)
	if len(syllables) == 0 {
		return chineseName
	}

	surname := capitalize(syllables[0])
	given := capitalize(strings.Join(syllables[1:], ""))
	if given == "" {
		return surname
	}
	return surname + " " + given
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// GenerateRandomVoterName 一半概率返回中文名，一半概率返回拼音名
func GenerateRandomVoterName() string {
	name := GenerateRandomChineseName()
	if rand.Intn(2) == 0 {
		return name
	}
	return RomanizeChineseName(name)
}

// GenerateRandomVoterNames 生成 n 个互不相同的名字
func GenerateRandomVoterNames(n int) []string {
	seen := make(map[string]struct{}, n)
	names := make([]string, 0, n)
	// 名字空间有限，尝试次数设上限避免死循环
	for attempts := 0; len(names) < n && attempts < n*100; attempts++ {
		name := GenerateRandomVoterName()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

func GenerateRandomVote() domain.Vote {
	return domain.AllVotes[rand.Intn(len(domain.AllVotes))]
}
