package main

import (
	"fmt"

	"github.com/Navl-bm/conveyance-note/godocx"
)

// Пример использования
func main() {
	data := map[string]any{
		"id":             1042,
		"short_title":    "Harbour Bill",
		"long_title":     "An Act to amend\nthe Harbour Act",
		"original_title": "Harbour (Amendment) Bill",
		"sponsors":       []string{"Ministry of Transport", "Ports Authority"},
	}

	opts := godocx.Options{ParagraphLoop: true, LineBreaks: true}
	err := godocx.ProcessDocx("template.docx", "output.docx", data, opts)
	if err != nil {
		fmt.Println("Ошибка:", err)
	} else {
		fmt.Println("Создан документ: output.docx")
	}
}
