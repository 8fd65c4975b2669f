package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ID - непрозрачный идентификатор записи CMS: строка или целое число
type ID struct {
	str   string
	num   int64
	isNum bool
}

// StringID создает строковый идентификатор
func StringID(s string) ID { return ID{str: s} }

// IntID создает числовой идентификатор
func IntID(n int64) ID { return ID{num: n, isNum: true} }

// IsZero сообщает, что идентификатор не задан
func (id ID) IsZero() bool { return !id.isNum && id.str == "" }

// IsInt сообщает, что идентификатор числовой
func (id ID) IsInt() bool { return id.isNum }

func (id ID) String() string {
	if id.isNum {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// Value возвращает значение для подстановки в шаблон
func (id ID) Value() any {
	if id.isNum {
		return id.num
	}
	return id.str
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.isNum {
		return []byte(strconv.FormatInt(id.num, 10)), nil
	}
	return json.Marshal(id.str)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	parsed, err := parseID(v)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("id: ожидалось скалярное значение, получено %v", node.Tag)
	}
	if node.Tag == "!!int" {
		n, err := strconv.ParseInt(node.Value, 0, 64)
		if err != nil {
			return fmt.Errorf("id: %w", err)
		}
		*id = IntID(n)
		return nil
	}
	*id = StringID(node.Value)
	return nil
}

// parseID принимает значение из JSON/YAML/CMS
func parseID(v any) (ID, error) {
	switch x := v.(type) {
	case string:
		return StringID(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return ID{}, fmt.Errorf("id: ожидалось целое число, получено %s", x)
		}
		return IntID(n), nil
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > 1<<53 {
			return ID{}, fmt.Errorf("id: ожидалось целое число, получено %v", x)
		}
		return IntID(int64(x)), nil
	case int:
		return IntID(int64(x)), nil
	case int64:
		return IntID(x), nil
	}
	return ID{}, fmt.Errorf("id: неподдерживаемый тип %T", v)
}

// SourceRecord - запись CMS, из которой заполняется шаблон
type SourceRecord struct {
	ID            ID     `json:"id" yaml:"id"`
	LongTitle     string `json:"long_title" yaml:"long_title"`
	ShortTitle    string `json:"short_title" yaml:"short_title"`
	OriginalTitle string `json:"original_title" yaml:"original_title"`
}

// Поля записи и имена тегов шаблона
const (
	FieldID            = "id"
	FieldLongTitle     = "long_title"
	FieldShortTitle    = "short_title"
	FieldOriginalTitle = "original_title"
)

// RequiredFields - поля, без которых запись не принимается
var RequiredFields = []string{FieldID, FieldLongTitle, FieldShortTitle, FieldOriginalTitle}

// Validate проверяет запись до любых операций ввода-вывода.
// Обязателен только id: у строковых полей структуры нет признака отсутствия,
// а пустой заголовок допустим и в RecordFromMap, где проверяется наличие ключа.
func (r *SourceRecord) Validate() error {
	if r.ID.IsZero() {
		return &PreconditionError{Message: fmt.Sprintf("record is missing required field %s", FieldID)}
	}
	return nil
}

// Data возвращает значения для подстановки в шаблон
func (r *SourceRecord) Data() map[string]any {
	return map[string]any{
		FieldID:            r.ID.Value(),
		FieldShortTitle:    r.ShortTitle,
		FieldLongTitle:     r.LongTitle,
		FieldOriginalTitle: r.OriginalTitle,
	}
}

// RecordFromMap строит запись из произвольного объекта (ответ CMS, JSON).
// Отсутствующее поле или поле неверного типа - ошибка предусловия.
func RecordFromMap(m map[string]any) (*SourceRecord, error) {
	if m == nil {
		return nil, &PreconditionError{Message: NoRecordMessage}
	}

	for _, f := range RequiredFields {
		if v, ok := m[f]; !ok || v == nil {
			return nil, &PreconditionError{Message: fmt.Sprintf("record is missing required field %s", f)}
		}
	}

	id, err := parseID(m[FieldID])
	if err != nil {
		return nil, &PreconditionError{Message: err.Error()}
	}

	rec := &SourceRecord{ID: id}
	fields := []struct {
		name string
		dst  *string
	}{
		{FieldLongTitle, &rec.LongTitle},
		{FieldShortTitle, &rec.ShortTitle},
		{FieldOriginalTitle, &rec.OriginalTitle},
	}
	for _, f := range fields {
		s, ok := m[f.name].(string)
		if !ok {
			return nil, &PreconditionError{Message: fmt.Sprintf("record field %s must be a string, got %T", f.name, m[f.name])}
		}
		*f.dst = s
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}
