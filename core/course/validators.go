package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/chuo/core"
)

var (
	itemTypeTag  = "itemtype"
	itemTypeText = "must be one of video, pdf or module"

	afterStartTag  = "afterstart"
	afterStartText = "end date must be after start date"
)

// InitValidators registers the course validations and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(itemTypeTag, itemTypeValidation)
	core.RegisterCustomTranslation(validate, translator, itemTypeTag, itemTypeText)

	validate.RegisterStructValidation(termStructValidation, NewTerm{})
	core.RegisterCustomTranslation(validate, translator, afterStartTag, afterStartText)
}

func itemTypeValidation(fl validator.FieldLevel) bool {
	typ := fl.Field().String()
	for _, t := range ItemTypes {
		if t == typ {
			return true
		}
	}
	return false
}

// termStructValidation checks that a term ends after it starts.
func termStructValidation(sl validator.StructLevel) {
	nt, ok := sl.Current().Interface().(NewTerm)
	if !ok || nt.StartDate.IsZero() || nt.EndDate.IsZero() {
		return
	}
	if !nt.EndDate.After(nt.StartDate) {
		sl.ReportError(nt.EndDate, "end_date", "EndDate", afterStartTag, "")
	}
}
