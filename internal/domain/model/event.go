package model

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"
)

// HintKind — исходное представление контрольной суммы от платформы.
type HintKind int

const (
	// HintNone — подсказка отсутствует
	HintNone HintKind = iota
	// HintInteger — целое число
	HintInteger
	// HintBytes — сырые байты
	HintBytes
	// HintString — строка (возможно, hex)
	HintString
)

// ChecksumHint — контрольная сумма, присланная платформой вместе с файлом.
// Value — десятичная запись (HintInteger) или строка (HintString),
// Raw — байтовое представление (HintInteger: 8 байт big-endian, HintBytes: как есть).
type ChecksumHint struct {
	Kind  HintKind
	Value string
	Raw   []byte
}

// IntegerHint создаёт подсказку из знакового целого.
func IntegerHint(v int64) ChecksumHint {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, uint64(v))
	return ChecksumHint{Kind: HintInteger, Value: strconv.FormatInt(v, 10), Raw: raw}
}

// UnsignedHint создаёт подсказку из беззнакового целого.
func UnsignedHint(v uint64) ChecksumHint {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, v)
	return ChecksumHint{Kind: HintInteger, Value: strconv.FormatUint(v, 10), Raw: raw}
}

// BytesHint создаёт подсказку из сырых байтов.
func BytesHint(b []byte) ChecksumHint {
	if len(b) == 0 {
		return ChecksumHint{}
	}
	return ChecksumHint{Kind: HintBytes, Raw: append([]byte(nil), b...)}
}

// StringHint создаёт подсказку из строки.
func StringHint(s string) ChecksumHint {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChecksumHint{}
	}
	return ChecksumHint{Kind: HintString, Value: s}
}

// FileSource — откуда скачивать файл: прямой URL или идентификатор файла группы.
type FileSource struct {
	URL    string
	FileID string
	BusID  int64
}

// FileEvent — нормализованное событие «в группу отправлен файл».
type FileEvent struct {
	SenderID    int64
	SenderName  string
	ContextID   int64
	MessageID   int64
	DisplayName string
	Size        int64
	Hint        ChecksumHint
	Source      FileSource
	Time        time.Time
}

// TextEvent — нормализованное текстовое сообщение группы.
type TextEvent struct {
	SenderID   int64
	SenderName string
	ContextID  int64
	MessageID  int64
	Text       string
	Time       time.Time
}
