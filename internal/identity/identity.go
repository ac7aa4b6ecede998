// Пакет identity — вычисление идентичности содержимого файла.
//
// Основная идентичность — MD5 всего файла (hex). Платформа может прислать
// собственную контрольную сумму в неоднозначном виде (число, байты, строка),
// поэтому для сравнения строится упорядоченный список кандидатов:
//   - MD5 (hex);
//   - десятичные интерпретации первых 8 байт MD5: BE unsigned, LE unsigned, BE signed, LE signed;
//   - представления подсказки платформы и их интерпретации.
//
// Дубликат — совпадение любого кандидата новой отправки с любым сохранённым.
package identity

import (
	"crypto/md5" //nolint:gosec // MD5 — идентичность содержимого, не криптография
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// chunkSize — размер блока чтения файла при хэшировании.
const chunkSize = 1 << 20

// minHintLen — минимальная длина строковой подсказки, принимаемой в кандидаты.
const minHintLen = 8

// Identity — идентичность содержимого файла.
type Identity struct {
	// Digest — MD5 содержимого (hex, нижний регистр)
	Digest string
	// Size — размер файла в байтах
	Size int64
	// Candidates — кандидатные идентичности, первая — Digest
	Candidates []string
}

// Resolve хэширует файл блоками по 1 MiB и строит список кандидатов
// с учётом подсказки платформы.
func Resolve(path string, hint model.ChecksumHint) (*Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("открытие файла для хэширования: %w", err)
	}
	defer f.Close()

	h := md5.New() //nolint:gosec // см. импорт
	buf := make([]byte, chunkSize)
	size, err := io.CopyBuffer(h, f, buf)
	if err != nil {
		return nil, fmt.Errorf("чтение файла для хэширования: %w", err)
	}

	sum := h.Sum(nil)
	return &Identity{
		Digest:     hex.EncodeToString(sum),
		Size:       size,
		Candidates: Candidates(sum, hint),
	}, nil
}

// Candidates строит детерминированный список кандидатов без повторов
// (порядок первого появления сохраняется).
func Candidates(digest []byte, hint model.ChecksumHint) []string {
	var c candidateList
	c.add(hex.EncodeToString(digest))
	c.add(Reinterpret(digest)...)

	if Degenerate(hint) {
		return c.items
	}

	switch hint.Kind {
	case model.HintInteger:
		c.add(hint.Value)
		c.add(Reinterpret(hint.Raw)...)
	case model.HintBytes:
		c.add(hex.EncodeToString(hint.Raw))
		c.add(Reinterpret(hint.Raw)...)
	case model.HintString:
		c.add(hint.Value)
		if len(hint.Value)%2 == 0 {
			if raw, err := hex.DecodeString(hint.Value); err == nil {
				c.add(strings.ToLower(hint.Value))
				c.add(Reinterpret(raw)...)
			}
		}
	}

	return c.items
}

// Degenerate сообщает, что подсказка не различает содержимое: нулевое
// число, байты из одних нулей, слишком короткая строка или строка из нулей.
// Такие подсказки совпали бы у разных файлов и в кандидаты не попадают.
func Degenerate(hint model.ChecksumHint) bool {
	switch hint.Kind {
	case model.HintInteger, model.HintBytes:
		for _, b := range hint.Raw {
			if b != 0 {
				return false
			}
		}
		return true
	case model.HintString:
		return len(hint.Value) < minHintLen || strings.Trim(hint.Value, "0") == ""
	default:
		return true
	}
}

// Reinterpret возвращает десятичные интерпретации первых 8 байт:
// big-endian unsigned, little-endian unsigned, big-endian signed, little-endian signed.
// Для последовательностей короче 8 байт возвращает nil.
func Reinterpret(b []byte) []string {
	if len(b) < 8 {
		return nil
	}
	be := binary.BigEndian.Uint64(b[:8])
	le := binary.LittleEndian.Uint64(b[:8])
	return []string{
		strconv.FormatUint(be, 10),
		strconv.FormatUint(le, 10),
		strconv.FormatInt(int64(be), 10),
		strconv.FormatInt(int64(le), 10),
	}
}

// Widen строит кандидатов по сохранённому MD5 (hex).
// Некорректный hex возвращается как единственный кандидат.
func Widen(hexDigest string) []string {
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return []string{hexDigest}
	}
	return Candidates(raw, model.ChecksumHint{})
}

// candidateList — упорядоченное множество строк.
type candidateList struct {
	items []string
	seen  map[string]struct{}
}

func (c *candidateList) add(values ...string) {
	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := c.seen[v]; ok {
			continue
		}
		c.seen[v] = struct{}{}
		c.items = append(c.items, v)
	}
}
