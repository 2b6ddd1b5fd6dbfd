package session

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	// custom validation tags
	notBlankTag      = "notblank"
	rosterForStudent = "roster_required"
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	validate.RegisterStructValidation(registerStructValidation, RegisterInput{})

	registerCustomTranslations(map[string]string{
		notBlankTag:      "{0} cannot be blank",
		rosterForStudent: "students must complete face verification first",
	})
}

func registerCustomTranslations(texts map[string]string) {
	for tag, text := range texts {
		text := text
		registerFn := func(t ut.Translator) error { return t.Add(tag, text, true) }
		translateFn := func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(fe.Tag(), fe.Field())
			if err != nil {
				return fe.Error()
			}
			return msg
		}
		_ = validate.RegisterTranslation(tag, translator, registerFn, translateFn)
	}
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

// registerStructValidation requires a roster entry for student sign-ups.
func registerStructValidation(sl validator.StructLevel) {
	if in, ok := sl.Current().Interface().(RegisterInput); ok {
		if in.Role == RoleStudent && strings.TrimSpace(in.RosterID) == "" {
			sl.ReportError(in.RosterID, "rosterId", "RosterID", rosterForStudent, "")
		}
	}
}

// validationMessage flattens validator errors into one translated line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(translator))
	}
	return strings.Join(msgs, "; ")
}
