package godocx

import (
	"fmt"
)

// TagError - ошибка синтаксиса тега в шаблоне
type TagError struct {
	Part    string
	Tag     string
	Message string
}

func (e *TagError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("%s: тег %q: %s", e.Part, e.Tag, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Part, e.Message)
}

// MissingValueError возвращается, если для тега нет значения в данных
type MissingValueError struct {
	Name string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("нет значения для тега %q", e.Name)
}

// TypeError возвращается, если значение нельзя подставить в тег
type TypeError struct {
	Name  string
	Value any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("неподдерживаемый тип значения для тега %q: %T", e.Name, e.Value)
}

// RenderError - ошибка подстановки в конкретной части документа
type RenderError struct {
	Part string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("ошибка в файле %s: %v", e.Part, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
