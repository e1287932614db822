package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/rpattn/restfilter/internal/domain"
)

// use a single instance, it caches struct info
var (
	validate *validator.Validate
	trans    ut.Translator
)

func init() {
	english := en.New()
	uni := ut.New(english, english)
	trans, _ = uni.GetTranslator("en")
	validate = validator.New(validator.WithRequiredStructEnabled())
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		panic(fmt.Sprintf("failed to register validator translations: %v", err))
	}
}

// Struct validates tagged structs and joins translated messages.
func Struct(value any) error {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	messages := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		messages = append(messages, e.Translate(trans))
	}
	return errors.New(strings.Join(messages, "; "))
}

// ValidateEntity checks an entity declaration: struct tags, fillable and
// guarded must be disjoint declared columns, and column and relation names
// must be unique.
func ValidateEntity(entity domain.EntitySchema) error {
	if err := Struct(entity); err != nil {
		return fmt.Errorf("entity %s: %w", entity.Name, err)
	}

	columns := make(map[string]struct{}, len(entity.Columns))
	for _, column := range entity.Columns {
		if _, dup := columns[column.Name]; dup {
			return fmt.Errorf("entity %s: column %s declared twice", entity.Name, column.Name)
		}
		columns[column.Name] = struct{}{}
	}
	if _, ok := columns[entity.Key()]; !ok {
		return fmt.Errorf("entity %s: primary key %s is not a declared column", entity.Name, entity.Key())
	}

	fillable := make(map[string]struct{}, len(entity.Fillable))
	for _, name := range entity.Fillable {
		if _, ok := columns[name]; !ok {
			return fmt.Errorf("entity %s: fillable column %s is not declared", entity.Name, name)
		}
		fillable[name] = struct{}{}
	}
	for _, name := range entity.Guarded {
		if _, ok := columns[name]; !ok {
			return fmt.Errorf("entity %s: guarded column %s is not declared", entity.Name, name)
		}
		if _, ok := fillable[name]; ok {
			return fmt.Errorf("entity %s: column %s cannot be both fillable and guarded", entity.Name, name)
		}
	}

	relations := make(map[string]struct{}, len(entity.Relations))
	for _, relation := range entity.Relations {
		if strings.Contains(relation.Name, ".") {
			return fmt.Errorf("entity %s: relation name %s cannot contain a dot", entity.Name, relation.Name)
		}
		if _, dup := relations[relation.Name]; dup {
			return fmt.Errorf("entity %s: relation %s declared twice", entity.Name, relation.Name)
		}
		relations[relation.Name] = struct{}{}
	}

	return nil
}
