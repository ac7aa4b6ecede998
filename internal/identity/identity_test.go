package identity

import (
	"crypto/md5" //nolint:gosec // тестовые данные
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// writeTemp создаёт временный файл с содержимым.
func writeTemp(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.bin")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// TestReinterpret_Order проверяет порядок десятичных интерпретаций первых 8 байт.
func TestReinterpret_Order(t *testing.T) {
	b := []byte{0xff, 0, 0, 0, 0, 0, 0, 0x01, 0xaa}
	got := Reinterpret(b)

	want := []string{
		"18374686479671623681", // BE unsigned 0xff00000000000001
		"72057594037928191",    // LE unsigned 0x01000000000000ff
		"-72057594037927935",   // BE signed
		"72057594037928191",    // LE signed (положительное)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, ожидалось 4", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Reinterpret[%d] = %s, ожидалось %s", i, got[i], want[i])
		}
	}
}

// TestReinterpret_Short проверяет, что короткие последовательности не интерпретируются.
func TestReinterpret_Short(t *testing.T) {
	if got := Reinterpret([]byte{1, 2, 3}); got != nil {
		t.Errorf("Reinterpret(3 байта) = %v, ожидался nil", got)
	}
}

// TestCandidates_HintBytesDedup проверяет кандидатов байтовой подсказки без повторов.
func TestCandidates_HintBytesDedup(t *testing.T) {
	digest := make([]byte, 16)
	for i := range digest {
		digest[i] = byte(i + 1)
	}
	hint := model.BytesHint([]byte{0xff, 0, 0, 0, 0, 0, 0, 0x01})

	got := Candidates(digest, hint)

	// Первый кандидат — hex MD5
	if got[0] != hex.EncodeToString(digest) {
		t.Errorf("первый кандидат = %s, ожидался hex MD5", got[0])
	}

	// Все четыре интерпретации подсказки присутствуют
	for _, v := range []string{"18374686479671623681", "72057594037928191", "-72057594037927935"} {
		if !contains(got, v) {
			t.Errorf("кандидат %s отсутствует в %v", v, got)
		}
	}

	// Без повторов
	seen := map[string]bool{}
	for _, v := range got {
		if seen[v] {
			t.Errorf("повтор кандидата %s", v)
		}
		seen[v] = true
	}

	// Порядок первого появления: BE unsigned подсказки раньше BE signed
	idx := func(v string) int {
		for i, item := range got {
			if item == v {
				return i
			}
		}
		return -1
	}
	if idx("18374686479671623681") > idx("-72057594037927935") {
		t.Error("порядок интерпретаций подсказки нарушен")
	}
}

// TestCandidates_HexStringHint проверяет кандидатов hex-строки в подсказке.
func TestCandidates_HexStringHint(t *testing.T) {
	digest := make([]byte, 16)
	hint := model.StringHint("  0102030405060708AABB  ")

	got := Candidates(digest, hint)

	if !contains(got, "0102030405060708AABB") {
		t.Error("исходная строка подсказки отсутствует")
	}
	if !contains(got, "0102030405060708aabb") {
		t.Error("hex в нижнем регистре отсутствует")
	}
	if !contains(got, "72623859790382856") { // 0x0102030405060708
		t.Error("BE-интерпретация декодированной подсказки отсутствует")
	}
}

// TestCandidates_OddStringNotDecoded — строка нечётной длины берётся как есть.
func TestCandidates_OddStringNotDecoded(t *testing.T) {
	got := Candidates(make([]byte, 16), model.StringHint("abcdef123"))
	if !contains(got, "abcdef123") {
		t.Error("строковая подсказка должна присутствовать как есть")
	}
}

// TestCandidates_IntegerHint проверяет кандидатов целочисленной подсказки.
func TestCandidates_IntegerHint(t *testing.T) {
	got := Candidates(make([]byte, 16), model.IntegerHint(-2))
	if !contains(got, "-2") {
		t.Error("десятичная запись подсказки отсутствует")
	}
	if !contains(got, "18446744073709551614") {
		t.Error("беззнаковая интерпретация отрицательной подсказки отсутствует")
	}
}

// TestResolve_SameContentDifferentHints проверяет пересечение кандидатов одного содержимого при разных подсказках.
func TestResolve_SameContentDifferentHints(t *testing.T) {
	content := []byte("одно и то же содержимое")
	first, err := Resolve(writeTemp(t, content), model.IntegerHint(12345))
	if err != nil {
		t.Fatalf("Resolve ошибка: %v", err)
	}
	second, err := Resolve(writeTemp(t, content), model.StringHint("deadbeefdeadbeef"))
	if err != nil {
		t.Fatalf("Resolve ошибка: %v", err)
	}

	sum := md5.Sum(content) //nolint:gosec // тест
	if first.Digest != hex.EncodeToString(sum[:]) {
		t.Errorf("Digest = %s, ожидался %s", first.Digest, hex.EncodeToString(sum[:]))
	}
	if first.Size != int64(len(content)) {
		t.Errorf("Size = %d, ожидался %d", first.Size, len(content))
	}

	// Пересечение кандидатов непустое при разных подсказках
	overlap := false
	for _, c := range second.Candidates {
		if contains(first.Candidates, c) {
			overlap = true
			break
		}
	}
	if !overlap {
		t.Error("кандидаты одинакового содержимого не пересекаются")
	}
}

// TestWiden проверяет кандидатов по сохранённому MD5.
func TestWiden(t *testing.T) {
	digest := []byte{0x81, 2, 3, 4, 5, 6, 7, 0x82, 9, 10, 11, 12, 13, 14, 15, 16}
	got := Widen(hex.EncodeToString(digest))
	if len(got) != 5 {
		t.Errorf("len(Widen) = %d, ожидалось 5 (hex + 4 интерпретации)", len(got))
	}
	if got := Widen("zz"); len(got) != 1 || got[0] != "zz" {
		t.Errorf("Widen(некорректный hex) = %v", got)
	}
}

// TestCandidates_DegenerateHintIgnored — нулевые и короткие подсказки
// не добавляют кандидатов сверх MD5 и его интерпретаций.
func TestCandidates_DegenerateHintIgnored(t *testing.T) {
	digest := []byte{0x81, 2, 3, 4, 5, 6, 7, 0x82, 9, 10, 11, 12, 13, 14, 15, 16}
	base := Candidates(digest, model.ChecksumHint{})

	hints := map[string]model.ChecksumHint{
		"целое 0":          model.IntegerHint(0),
		"беззнаковое 0":    model.UnsignedHint(0),
		"нулевые байты":    model.BytesHint(make([]byte, 16)),
		"строка из нулей":  model.StringHint("00000000000000000000000000000000"),
		"короткая строка":  model.StringHint("0"),
		"короткая строка2": model.StringHint("abc"),
	}
	for name, hint := range hints {
		if !Degenerate(hint) {
			t.Errorf("%s: подсказка должна считаться вырожденной", name)
		}
		got := Candidates(digest, hint)
		if len(got) != len(base) {
			t.Errorf("%s: кандидаты %v, ожидались %v", name, got, base)
		}
	}

	if Degenerate(model.IntegerHint(-2)) || Degenerate(model.StringHint("deadbeefdeadbeef")) {
		t.Error("значимая подсказка считается вырожденной")
	}
}

// TestResolve_ZeroHintDifferentContent — разное содержимое с нулевой
// подсказкой не даёт общих кандидатов.
func TestResolve_ZeroHintDifferentContent(t *testing.T) {
	first, err := Resolve(writeTemp(t, []byte("первый файл")), model.IntegerHint(0))
	if err != nil {
		t.Fatalf("Resolve ошибка: %v", err)
	}
	second, err := Resolve(writeTemp(t, []byte("второй файл")), model.IntegerHint(0))
	if err != nil {
		t.Fatalf("Resolve ошибка: %v", err)
	}
	for _, c := range second.Candidates {
		if contains(first.Candidates, c) {
			t.Errorf("общий кандидат %s у разного содержимого", c)
		}
	}
}
