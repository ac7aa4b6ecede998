package watermark

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"strings"
)

// TextOptions — параметры вставки водяного знака в текст.
type TextOptions struct {
	// Text — текст знака; пусто — фраза из встроенного набора
	Text string
	// Times — количество вставок на пустые строки
	Times int
	// Rand — источник случайности (nil — глобальный)
	Rand *rand.Rand
}

// WatermarkText вставляет строки водяного знака в текст.
//
// Знак вставляется перед Times случайными пустыми строками и дописывается
// в конец. Текст возвращается без изменений (changed = false), если знак уже
// присутствует или пустых строк меньше Times. Результат кодируется в исходной
// кодировке файла.
func WatermarkText(raw []byte, opts TextOptions) (out []byte, changed bool, err error) {
	if opts.Times < 1 {
		opts.Times = 1
	}

	content, enc, err := decodeText(raw)
	if err != nil {
		return nil, false, err
	}

	// Повторная обработка не добавляет второй знак
	for _, marker := range knownMarkers(opts.Text) {
		if strings.Contains(content, marker) {
			return raw, false, nil
		}
	}

	lines := splitLines(content)
	var blank []int
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank = append(blank, i)
		}
	}
	if len(blank) < opts.Times {
		return raw, false, nil
	}

	marker := opts.Text
	if marker == "" {
		marker = pickPhrase(opts.Rand)
	}
	nl := detectNewline(content)

	positions := choose(blank, opts.Times, opts.Rand)
	// Вставка с конца сохраняет корректность оставшихся индексов
	sort.Sort(sort.Reverse(sort.IntSlice(positions)))
	for _, pos := range positions {
		lines = append(lines, "")
		copy(lines[pos+1:], lines[pos:])
		lines[pos] = marker + nl
	}

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
	}
	if len(lines) > 0 && !strings.HasSuffix(lines[len(lines)-1], "\n") {
		b.WriteString(nl)
	}
	b.WriteString(marker)
	b.WriteString(nl)

	out, err = encodeText(b.String(), enc)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// watermarkTextFile применяет WatermarkText к файлу src и пишет результат в dst.
// Если текст не изменился, dst всё равно создаётся с исходным содержимым.
func watermarkTextFile(src, dst string, opts TextOptions) (bool, error) {
	raw, err := os.ReadFile(src)
	if err != nil {
		return false, fmt.Errorf("чтение текстового файла: %w", err)
	}
	out, changed, err := WatermarkText(raw, opts)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(dst, out, 0o640); err != nil {
		return false, fmt.Errorf("запись текстового файла: %w", err)
	}
	return changed, nil
}

// splitLines делит текст на строки, сохраняя терминаторы.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// detectNewline возвращает преобладающий терминатор строки (\r\n или \n).
func detectNewline(s string) string {
	crlf := strings.Count(s, "\r\n")
	lf := strings.Count(s, "\n") - crlf
	if crlf > lf {
		return "\r\n"
	}
	return "\n"
}

// choose выбирает n различных элементов из items.
func choose(items []int, n int, r *rand.Rand) []int {
	perm := permutation(len(items), r)
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = items[perm[i]]
	}
	return out
}

func permutation(n int, r *rand.Rand) []int {
	if r != nil {
		return r.Perm(n)
	}
	return rand.Perm(n)
}
