package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/qunqun-dev/date-poll/backend/internal/availability"
	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/utils"
)

func (h *Handler) SubmitVotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dates []string `json:"dates" validate:"omitempty,dive,isodate"`
		From  string   `json:"from" validate:"required_with=To,omitempty,isodate"`
		To    string   `json:"to" validate:"required_with=From,omitempty,isodate"`
		Vote  string   `json:"vote" validate:"required,vote"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	// 在展开区间之前检查日期数量，避免一次请求产生大量写入
	maxDates := h.config.Commit.MaxDates
	if maxDates > 0 {
		count := len(req.Dates)
		if req.From != "" {
			n, err := utils.CountDates(req.From, req.To)
			if err != nil {
				h.errorResponse(w, r, err.Error())
				return
			}
			count += n
		}
		if count > maxDates {
			h.errorResponse(w, r, fmt.Sprintf("一次最多只能选择 %d 天", maxDates))
			return
		}
	}

	user, _ := sessionUser(r.Context())
	sel := availability.NewSelection(h.store, user, h.config.Commit.Concurrency)

	if len(req.Dates) > 0 {
		if err := sel.Select(req.Dates...); err != nil {
			h.errorResponse(w, r, err.Error())
			return
		}
	}
	if req.From != "" {
		if err := sel.SelectRange(req.From, req.To); err != nil {
			h.errorResponse(w, r, err.Error())
			return
		}
	}
	if err := sel.Finalize(); err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptySelection):
			h.errorResponse(w, r, "请至少选择一个日期")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	// 客户端断开后已经开始的写入仍然要完成，每次写入都有自己的超时
	result, err := sel.Commit(context.WithoutCancel(r.Context()), domain.Vote(req.Vote))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidVote):
			h.errorResponse(w, r, err.Error())
		case errors.Is(err, domain.ErrStorageUnavailable):
			h.storageUnavailable(w, r, "保存失败，请检查网络连接", err, result)
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "投票成功", result)
}
