package handler

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/utils"
)

func registerValidations(validate *validator.Validate, trans ut.Translator) error {
	if err := validate.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		return utils.ValidateDate(fl.Field().String()) == nil
	}); err != nil {
		return err
	}
	if err := validate.RegisterValidation("vote", func(fl validator.FieldLevel) bool {
		return domain.Vote(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}

	translations := map[string]string{
		"isodate": "{0}必须是 YYYY-MM-DD 格式的有效日期",
		"vote":    "{0}必须是 O、V 或 X 之一",
	}
	for tag, text := range translations {
		if err := validate.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
			return ut.Add(tag, text, true)
		}, func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(fe.Tag(), fe.Field())
			return t
		}); err != nil {
			return err
		}
	}

	return nil
}
