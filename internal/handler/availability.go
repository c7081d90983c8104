package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/qunqun-dev/date-poll/backend/internal/availability"
	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/utils"
)

func (h *Handler) GetAvailabilityInRange(w http.ResponseWriter, r *http.Request) {
	dr := domain.DateRange{
		Start: r.URL.Query().Get("start"),
		End:   r.URL.Query().Get("end"),
	}
	if err := utils.ValidateDateRange(dr); err != nil {
		h.errorResponse(w, r, err.Error())
		return
	}

	records, err := h.store.ReadRange(r.Context(), dr)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取投票记录成功", records)
}

func (h *Handler) GetAllAvailability(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ReadAll(r.Context())
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取投票记录成功", records)
}

func (h *Handler) GetMonthSummary(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.errorResponse(w, r, "年份无效")
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		h.errorResponse(w, r, "月份无效")
		return
	}

	dr, err := availability.MonthRange(year, month)
	if err != nil {
		h.errorResponse(w, r, err.Error())
		return
	}

	records, err := h.store.ReadRange(r.Context(), dr)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	user, _ := sessionUser(r.Context())
	h.successResponse(w, r, "获取月份汇总成功", availability.Summarize(dr, availability.NewMonthView(records), user.Name))
}

func (h *Handler) GetDateSummary(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	dr, err := utils.DayRange(date)
	if err != nil {
		h.errorResponse(w, r, err.Error())
		return
	}

	records, err := h.store.ReadRange(r.Context(), dr)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	// 没有人投票的日期也返回一个空的汇总
	var votes domain.Votes
	for _, record := range records {
		if record.Date == date {
			votes = record.Votes
		}
	}

	user, _ := sessionUser(r.Context())
	h.successResponse(w, r, "获取日期汇总成功", availability.SummarizeDay(date, votes, user.Name))
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		h.storageUnavailable(w, r, "存储不可用", err, nil)
		return
	}

	h.successResponse(w, r, "ok", nil)
}
