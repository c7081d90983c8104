package domain

// User 是会话中的临时身份，只用于标记投票，不写入存储
type User struct {
	Name string `json:"name"`
	Code string `json:"code"`
}
