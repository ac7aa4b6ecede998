package watermark

import "math/rand/v2"

// phrases — набор фраз водяного знака по умолчанию.
var phrases = []string{
	"Файл из общего архива группы, распространение запрещено",
	"Сохранено архивом группы, не для перепродажи",
	"Архив группы: читайте бесплатно, не продавайте",
	"Копия из архива группы, при перепубликации указывайте источник",
}

// pickPhrase выбирает случайную фразу из набора.
func pickPhrase(r *rand.Rand) string {
	if r != nil {
		return phrases[r.IntN(len(phrases))]
	}
	return phrases[rand.IntN(len(phrases))]
}

// knownMarkers возвращает тексты, наличие которых означает, что знак уже стоит.
// При явно заданном тексте — только он, иначе — весь набор фраз.
func knownMarkers(configured string) []string {
	if configured != "" {
		return []string{configured}
	}
	return phrases
}

// pdfDefaultText — текст штампа PDF по умолчанию. Встроенный шрифт Helvetica
// не содержит кириллицы, поэтому фразы набора для PDF не используются.
const pdfDefaultText = "archive copy - not for resale"
