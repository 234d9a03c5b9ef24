// Package validator validates request DTOs with go-playground/validator and
// renders field errors in English or Chinese. It also plugs into gin's
// binding so ShouldBindJSON runs the same rules.
package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// Language constants for i18n support.
const (
	LangEN = "en"
	LangZH = "zh"
)

// TagName 校验规则所在的结构体标签，与 gin 绑定保持一致。
const TagName = "binding"

// SearchTypes 检索服务支持的检索方式。
var SearchTypes = []string{
	"similarity",
	"similarity_distance_threshold",
	"similarity_score_threshold",
	"mmr",
}

// Validator wraps go-playground/validator with translators.
type Validator struct {
	validate *validator.Validate
	trans    map[string]ut.Translator
}

var (
	globalValidator *Validator
	once            sync.Once
)

// Global returns the process wide validator, created on first use.
func Global() *Validator {
	once.Do(func() {
		globalValidator = New()
	})
	return globalValidator
}

// New creates a Validator with EN/ZH translations and the custom rules used
// by the megaservice request types.
func New() *Validator {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		trans:    make(map[string]ut.Translator),
	}
	v.validate.SetTagName(TagName)

	// 错误字段名使用 json/form 标签
	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale, zh.New())

	enTrans, _ := uni.GetTranslator(LangEN)
	_ = en_translations.RegisterDefaultTranslations(v.validate, enTrans)
	v.trans[LangEN] = enTrans

	zhTrans, _ := uni.GetTranslator(LangZH)
	_ = zh_translations.RegisterDefaultTranslations(v.validate, zhTrans)
	v.trans[LangZH] = zhTrans

	v.mustRegister("search_type", validateSearchType, map[string]string{
		LangEN: "{0} must be one of " + strings.Join(SearchTypes, ", "),
		LangZH: "{0}必须是" + strings.Join(SearchTypes, "、") + "之一",
	})
	v.mustRegister("db_name", validateDBName, map[string]string{
		LangEN: "{0} must be a valid database name",
		LangZH: "{0}必须是合法的数据库名称",
	})

	return v
}

// validateSearchType 空值视为使用默认检索方式。
func validateSearchType(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	for _, t := range SearchTypes {
		if s == t {
			return true
		}
	}
	return false
}

// validateDBName 校验 MongoDB 数据库名称。
func validateDBName(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || len(s) > 63 {
		return false
	}
	return !strings.ContainsAny(s, "/\\. \"$*<>:|?")
}

func (v *Validator) mustRegister(tag string, fn validator.Func, messages map[string]string) {
	if err := v.validate.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
	for lang, message := range messages {
		trans := v.trans[lang]
		_ = v.validate.RegisterTranslation(tag, trans,
			func(ut ut.Translator) error {
				return ut.Add(tag, message, true)
			},
			func(ut ut.Translator, fe validator.FieldError) string {
				t, _ := ut.T(tag, fe.Field())
				return t
			},
		)
	}
}

// Translator returns the translator for lang, falling back to English.
func (v *Validator) Translator(lang string) ut.Translator {
	if trans, ok := v.trans[normalizeLang(lang)]; ok {
		return trans
	}
	return v.trans[LangEN]
}

// Validate validates a struct and returns the raw validator error.
func (v *Validator) Validate(s any) error {
	return v.validate.Struct(s)
}

// ValidateWithLang validates a struct and returns translated errors, or nil.
func (v *Validator) ValidateWithLang(s any, lang string) *ValidationErrors {
	return v.Translate(v.validate.Struct(s), lang)
}

// Translate converts an error returned by Validate into translated field
// errors. Errors of other types become a single "unknown" field error.
func (v *Validator) Translate(err error, lang string) *ValidationErrors {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError("unknown", "unknown", err.Error())
	}

	trans := v.Translator(lang)
	result := &ValidationErrors{Errors: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		result.Errors = append(result.Errors, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: fe.Translate(trans),
		})
	}
	return result
}

// IsValidationError reports whether err was produced by struct validation
// rather than by decoding.
func IsValidationError(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

// Engine returns the underlying validator.Validate instance.
func (v *Validator) Engine() *validator.Validate {
	return v.validate
}

// normalizeLang 将 Accept-Language 形式的值归一为 en 或 zh。
func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if strings.HasPrefix(lang, LangZH) {
		return LangZH
	}
	return LangEN
}

// Struct validates a struct with the global validator.
func Struct(s any) error {
	return Global().Validate(s)
}

// StructWithLang validates a struct with the global validator and
// translates the result.
func StructWithLang(s any, lang string) *ValidationErrors {
	return Global().ValidateWithLang(s, lang)
}
