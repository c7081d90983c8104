package handler

import (
	"context"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
)

type ContextKey string

var (
	SessionUserCtx ContextKey = "sessionUser"
)

func sessionUser(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(SessionUserCtx).(domain.User)
	return user, ok
}
