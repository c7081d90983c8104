package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/utils"
)

var ErrInvalidToken = errors.New("无效的会话")

// Identity 负责签发和识别会话。目前只是给投票贴上名字，不做任何身份验证
type Identity interface {
	Issue(user domain.User) (string, time.Time, error)
	Resolve(token string) (domain.User, error)
}

// NewUser 根据输入的名字创建会话用户，代号是名字的第一个字符（大写）
func NewUser(name string) (domain.User, error) {
	name, err := utils.NormalizeUserName(name)
	if err != nil {
		return domain.User{}, err
	}

	return domain.User{
		Name: name,
		Code: utils.UserCode(name),
	}, nil
}

type Claims struct {
	Code string `json:"code"`
	jwt.RegisteredClaims
}

type JWTIdentity struct {
	secret     []byte
	expiration time.Duration
}

func NewJWTIdentity(secret string, expiration time.Duration) *JWTIdentity {
	return &JWTIdentity{
		secret:     []byte(secret),
		expiration: expiration,
	}
}

func (i *JWTIdentity) Issue(user domain.User) (string, time.Time, error) {
	now := time.Now()
	expiration := now.Add(i.expiration)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Code: user.Code,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   user.Name,
		},
	})
	ss, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return ss, expiration, nil
}

func (i *JWTIdentity) Resolve(token string) (domain.User, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.User{}, errors.Join(ErrInvalidToken, err)
	}

	// 名字在签发时已经校验过，这里再用同样的规则检查一次，防止旧格式的令牌
	user, err := NewUser(claims.Subject)
	if err != nil {
		return domain.User{}, errors.Join(ErrInvalidToken, err)
	}

	return user, nil
}
