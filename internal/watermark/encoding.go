package watermark

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// textEncoding — кодировка, в которой прочитан текстовый файл.
// Файл записывается обратно в той же кодировке.
type textEncoding string

const (
	encUTF8BOM textEncoding = "utf-8-bom"
	encUTF8    textEncoding = "utf-8"
	encUTF16LE textEncoding = "utf-16le"
	encUTF16BE textEncoding = "utf-16be"
	encGB18030 textEncoding = "gb18030"
	// encUTF8Lossy — недекодируемые байты заменены на U+FFFD
	encUTF8Lossy textEncoding = "utf-8-lossy"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeText читает байты по лестнице кодировок:
// UTF-8 BOM → UTF-8 → UTF-16 (по BOM) → GB18030 → UTF-8 с заменой.
// Последняя ступень всегда успешна и записывается обратно как UTF-8.
func decodeText(raw []byte) (string, textEncoding, error) {
	switch {
	case bytes.HasPrefix(raw, bomUTF8) && utf8.Valid(raw[len(bomUTF8):]):
		return string(raw[len(bomUTF8):]), encUTF8BOM, nil
	case utf8.Valid(raw):
		return string(raw), encUTF8, nil
	case bytes.HasPrefix(raw, bomUTF16LE):
		if s, err := decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), raw); err == nil {
			return s, encUTF16LE, nil
		}
	case bytes.HasPrefix(raw, bomUTF16BE):
		if s, err := decodeWith(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), raw); err == nil {
			return s, encUTF16BE, nil
		}
	}

	// GB18030 не возвращает ошибок на мусоре, а подставляет U+FFFD
	if s, err := decodeWith(simplifiedchinese.GB18030, raw); err == nil && !strings.ContainsRune(s, utf8.RuneError) {
		return s, encGB18030, nil
	}

	return strings.ToValidUTF8(string(raw), string(utf8.RuneError)), encUTF8Lossy, nil
}

// encodeText кодирует строку обратно в исходную кодировку.
// Ошибка означает, что символ водяного знака не представим в кодировке файла.
func encodeText(s string, enc textEncoding) ([]byte, error) {
	switch enc {
	case encUTF8, encUTF8Lossy:
		return []byte(s), nil
	case encUTF8BOM:
		return append(append([]byte(nil), bomUTF8...), s...), nil
	case encUTF16LE:
		return encodeWith(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), s)
	case encUTF16BE:
		return encodeWith(unicode.UTF16(unicode.BigEndian, unicode.UseBOM), s)
	case encGB18030:
		return encodeWith(simplifiedchinese.GB18030, s)
	default:
		return nil, fmt.Errorf("неизвестная кодировка %q", enc)
	}
}

func decodeWith(e encoding.Encoding, raw []byte) (string, error) {
	out, err := e.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func encodeWith(e encoding.Encoding, s string) ([]byte, error) {
	out, err := e.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("кодирование текста: %w", err)
	}
	return out, nil
}
