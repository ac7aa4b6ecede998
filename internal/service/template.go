package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNotTemplate — сообщение не является запросом по шаблону.
var ErrNotTemplate = errors.New("сообщение не является запросом")

// requestPattern — шаблон запроса из трёх строк, двоеточие ASCII или полноширинное.
var requestPattern = regexp.MustCompile(`^Книга[：:](.*)\nАвтор[：:](.*)\nПлатформа[：:](.*)$`)

var (
	spacePattern   = regexp.MustCompile(`\s+`)
	bracketPattern = regexp.MustCompile(`\[.*?]`)
	titleReplacer  = strings.NewReplacer("：", "", ":", "", "《", "", "》", "", "«", "", "»", "")
)

// RequestTemplate — разобранный запрос.
type RequestTemplate struct {
	Book     string
	Author   string
	Platform string
}

// Keyword — ключ поиска «книга автор».
func (t RequestTemplate) Keyword() string {
	return strings.TrimSpace(t.Book + " " + t.Author)
}

// ParseTemplate разбирает запрос вида
//
//	Книга: <название>
//	Автор: <автор>
//	Платформа: <платформа>
//
// ErrNotTemplate — текст не похож на запрос; ErrValidation — шаблон
// распознан, но поле пустое (в том числе название после очистки).
func ParseTemplate(text string) (RequestTemplate, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	m := requestPattern.FindStringSubmatch(text)
	if m == nil {
		return RequestTemplate{}, ErrNotTemplate
	}

	t := RequestTemplate{
		Book:     strings.TrimSpace(m[1]),
		Author:   strings.TrimSpace(m[2]),
		Platform: strings.TrimSpace(m[3]),
	}
	if t.Book == "" || t.Author == "" || t.Platform == "" {
		return RequestTemplate{}, fmt.Errorf("%w: не заполнены поля шаблона", ErrValidation)
	}

	t.Book = CleanBookName(t.Book)
	if t.Book == "" {
		return RequestTemplate{}, fmt.Errorf("%w: пустое название книги", ErrValidation)
	}
	return t, nil
}

// CleanBookName убирает из названия двоеточия, кавычки и фрагменты
// в квадратных скобках; пробельные последовательности сжимаются до одного пробела.
func CleanBookName(name string) string {
	name = titleReplacer.Replace(name)
	name = bracketPattern.ReplaceAllString(name, "")
	name = spacePattern.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
