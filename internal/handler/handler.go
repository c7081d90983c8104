package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/gorilla/websocket"
	"github.com/qunqun-dev/date-poll/backend/internal/availability"
	"github.com/qunqun-dev/date-poll/backend/internal/config"
	"github.com/qunqun-dev/date-poll/backend/internal/metrics"
	"github.com/qunqun-dev/date-poll/backend/internal/session"
)

// Pinger 用于健康检查，repository 都实现了它
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	validate   *validator.Validate
	config     *config.Config
	store      *availability.Store
	identity   session.Identity
	pinger     Pinger
	translator ut.Translator
	upgrader   websocket.Upgrader

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, store *availability.Store, identity session.Identity, pinger Pinger) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}
	if err := registerValidations(validate, trans); err != nil {
		return nil, err
	}

	// 错误信息里使用 json 字段名，和前端看到的一致
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	h := &Handler{
		validate:   validate,
		config:     cfg,
		store:      store,
		identity:   identity,
		pinger:     pinger,
		translator: trans,

		Mux: chi.NewRouter(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h, nil
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	// 开发环境下前端通常跑在另一个端口上
	if h.config.Environment == "development" {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.EqualFold(strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://"), r.Host)
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	h.Mux.Get("/healthz", h.Healthz)
	h.Mux.Method(http.MethodGet, "/metrics", metrics.Handler())

	// 以下 API 在有会话时会带上当前用户，但不强制要求
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.identify)

		r.Route("/session", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.With(h.requireSession).Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
		})

		r.Route("/availability", func(r chi.Router) {
			r.Get("/", h.GetAvailabilityInRange)
			r.Get("/all", h.GetAllAvailability)
		})

		r.Route("/months", func(r chi.Router) {
			r.Get("/live", h.LiveMonths)
			r.Get("/{year}/{month}", h.GetMonthSummary)
		})

		r.Get("/dates/{date}", h.GetDateSummary)

		// 投票必须要先输入名字
		r.With(h.requireSession).Post("/votes", h.SubmitVotes)
	})
}
