package generator

import (
	"errors"
	"fmt"
)

// Сообщения канала уведомлений
const (
	NoRecordMessage    = "Please select a proposal first."
	UnknownErrorPrefix = "An error occurred: "
	UnknownErrorText   = "An unknown error occurred while generating the document."
)

// Kind - вид результата генерации
type Kind int

const (
	KindOK Kind = iota
	KindPrecondition
	KindTemplateNotFound
	KindGeneration
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindPrecondition:
		return "precondition"
	case KindTemplateNotFound:
		return "template_not_found"
	case KindGeneration:
		return "generation"
	default:
		return "unknown"
	}
}

// PreconditionError - запись не передана или не прошла проверку.
// Возникает до любых операций ввода-вывода.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string {
	return e.Message
}

// TemplateNotFoundError - шаблон не удалось получить
type TemplateNotFoundError struct {
	Name     string
	Location string
	Err      error
}

func (e *TemplateNotFoundError) Error() string {
	msg := fmt.Sprintf("Template not found. Make sure '%s' is in your public/ directory.", e.Name)
	if e.Location != "" {
		msg += fmt.Sprintf(" (looked in %s)", e.Location)
	}
	return msg
}

func (e *TemplateNotFoundError) Unwrap() error {
	return e.Err
}

// GenerationError - ошибка разбора шаблона, подстановки, упаковки или сохранения.
// Сообщение библиотеки передается без изменений.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return UnknownErrorText
	}
	return e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// KindOf классифицирует ошибку генерации
func KindOf(err error) Kind {
	var (
		pre      *PreconditionError
		notFound *TemplateNotFoundError
	)
	switch {
	case err == nil:
		return KindOK
	case errors.As(err, &pre):
		return KindPrecondition
	case errors.As(err, &notFound):
		return KindTemplateNotFound
	default:
		return KindGeneration
	}
}

// Advisory превращает ошибку в сообщение для пользователя
func Advisory(err error) string {
	var pre *PreconditionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pre):
		return pre.Message
	default:
		return UnknownErrorPrefix + err.Error()
	}
}
