package godocx

import (
	"fmt"
	"reflect"
	"strconv"
)

// scope - стек контекстов подстановки, последний элемент - внутренний
type scope []any

func (s scope) push(v any) scope {
	next := make(scope, len(s), len(s)+1)
	copy(next, s)
	return append(next, v)
}

// lookup ищет значение от внутреннего контекста к внешнему
func (s scope) lookup(name string) (any, bool) {
	if name == "." {
		if len(s) == 0 {
			return nil, false
		}
		return s[len(s)-1], true
	}

	for i := len(s) - 1; i >= 0; i-- {
		if v, ok := field(s[i], name); ok {
			return v, true
		}
	}
	return nil, false
}

func field(ctx any, name string) (any, bool) {
	switch m := ctx.(type) {
	case nil:
		return nil, false
	case map[string]any:
		v, ok := m[name]
		return v, ok
	case map[string]string:
		v, ok := m[name]
		return v, ok
	}

	rv := reflect.ValueOf(ctx)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if v.IsValid() {
			return v.Interface(), true
		}
	}
	return nil, false
}

// formatValue приводит значение к тексту для подстановки
func formatValue(name string, v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", &MissingValueError{Name: name}
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.String:
		return rv.String(), nil
	}
	return "", &TypeError{Name: name, Value: v}
}

// sectionItems возвращает контексты, с которыми повторяется раздел
func sectionItems(v any) []any {
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return items
	case reflect.Bool:
		if !rv.Bool() {
			return nil
		}
	case reflect.String:
		if rv.Len() == 0 {
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() == 0 {
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() == 0 {
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if rv.Float() == 0 {
			return nil
		}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
	}
	return []any{v}
}
