// Пакет onebot — адаптер чат-платформы по протоколу OneBot v11.
//
// Normalize — единственная точка разбора входящих событий: сообщения группы
// с сегментами file, уведомления group_upload и текстовые сообщения
// приводятся к model.FileEvent / model.TextEvent. Остальные события
// возвращаются с видом EventIgnored.
//
// Client — исходящие вызовы HTTP API (send_group_msg, set_essence_msg,
// set_group_ban, delete_msg, get_group_member_info, get_group_file_url)
// и скачивание файлов во временный каталог.
package onebot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// ErrMalformedEvent — тело события не является корректным JSON OneBot.
var ErrMalformedEvent = errors.New("некорректное событие OneBot")

// EventKind — вид нормализованного события.
type EventKind int

const (
	// EventIgnored — событие не относится к модулю
	EventIgnored EventKind = iota
	// EventFiles — в группу отправлены файлы
	EventFiles
	// EventText — текстовое сообщение группы
	EventText
)

func (k EventKind) String() string {
	switch k {
	case EventFiles:
		return "files"
	case EventText:
		return "text"
	default:
		return "ignored"
	}
}

// Event — результат нормализации.
type Event struct {
	Kind  EventKind
	Files []model.FileEvent
	Text  *model.TextEvent
}

// hintFields — поля сегмента, в которых платформы присылают контрольную сумму.
var hintFields = []string{"md5", "file_md5", "file_hash", "hash"}

type rawSender struct {
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
}

type rawSegment struct {
	Type string                     `json:"type"`
	Data map[string]json.RawMessage `json:"data"`
}

type rawUpload struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Size  json.RawMessage `json:"size"`
	BusID json.RawMessage `json:"busid"`
	URL   string          `json:"url"`
	MD5   json.RawMessage `json:"md5"`
}

type rawEvent struct {
	Time        int64           `json:"time"`
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	NoticeType  string          `json:"notice_type"`
	MessageID   int64           `json:"message_id"`
	GroupID     int64           `json:"group_id"`
	UserID      int64           `json:"user_id"`
	Sender      rawSender       `json:"sender"`
	Message     json.RawMessage `json:"message"`
	RawMessage  string          `json:"raw_message"`
	File        *rawUpload      `json:"file"`
}

// Normalize разбирает событие OneBot v11.
func Normalize(raw []byte) (*Event, error) {
	var ev rawEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	at := time.Now()
	if ev.Time > 0 {
		at = time.Unix(ev.Time, 0)
	}

	switch {
	case ev.PostType == "notice" && ev.NoticeType == "group_upload":
		if ev.File == nil || ev.GroupID == 0 {
			return &Event{Kind: EventIgnored}, nil
		}
		return &Event{Kind: EventFiles, Files: []model.FileEvent{uploadEvent(&ev, at)}}, nil

	case ev.PostType == "message" && ev.MessageType == "group":
		return messageEvent(&ev, at)

	default:
		return &Event{Kind: EventIgnored}, nil
	}
}

func uploadEvent(ev *rawEvent, at time.Time) model.FileEvent {
	f := ev.File
	busID, _ := looseInt(f.BusID)
	size, _ := looseInt(f.Size)
	return model.FileEvent{
		SenderID:    ev.UserID,
		SenderName:  senderName(ev.Sender),
		ContextID:   ev.GroupID,
		MessageID:   ev.MessageID,
		DisplayName: f.Name,
		Size:        size,
		Hint:        parseHint(f.MD5),
		Source:      model.FileSource{URL: f.URL, FileID: f.ID, BusID: busID},
		Time:        at,
	}
}

func messageEvent(ev *rawEvent, at time.Time) (*Event, error) {
	text, segments, err := parseMessage(ev.Message, ev.RawMessage)
	if err != nil {
		return nil, err
	}

	var files []model.FileEvent
	for _, seg := range segments {
		if seg.Type != "file" {
			continue
		}
		name := stringField(seg.Data, "name")
		if name == "" {
			name = stringField(seg.Data, "file")
		}
		if name == "" {
			continue
		}
		size, _ := looseInt(seg.Data["file_size"])
		if size == 0 {
			size, _ = looseInt(seg.Data["size"])
		}
		busID, _ := looseInt(seg.Data["busid"])
		fe := model.FileEvent{
			SenderID:    ev.UserID,
			SenderName:  senderName(ev.Sender),
			ContextID:   ev.GroupID,
			MessageID:   ev.MessageID,
			DisplayName: name,
			Size:        size,
			Source: model.FileSource{
				URL:    stringField(seg.Data, "url"),
				FileID: stringField(seg.Data, "file_id"),
				BusID:  busID,
			},
			Time: at,
		}
		for _, field := range hintFields {
			if h := parseHint(seg.Data[field]); h.Kind != model.HintNone {
				fe.Hint = h
				break
			}
		}
		files = append(files, fe)
	}

	if len(files) > 0 {
		return &Event{Kind: EventFiles, Files: files}, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return &Event{Kind: EventIgnored}, nil
	}
	return &Event{Kind: EventText, Text: &model.TextEvent{
		SenderID:   ev.UserID,
		SenderName: senderName(ev.Sender),
		ContextID:  ev.GroupID,
		MessageID:  ev.MessageID,
		Text:       text,
		Time:       at,
	}}, nil
}

// parseMessage поддерживает оба формата поля message: массив сегментов и строку.
func parseMessage(msg json.RawMessage, rawMessage string) (string, []rawSegment, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return rawMessage, nil, nil
	}

	if msg[0] == '"' {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return "", nil, fmt.Errorf("%w: message: %v", ErrMalformedEvent, err)
		}
		return s, nil, nil
	}

	var segments []rawSegment
	if err := json.Unmarshal(msg, &segments); err != nil {
		return "", nil, fmt.Errorf("%w: message: %v", ErrMalformedEvent, err)
	}
	var sb strings.Builder
	for _, seg := range segments {
		if seg.Type == "text" {
			sb.WriteString(stringField(seg.Data, "text"))
		}
	}
	return sb.String(), segments, nil
}

// parseHint разбирает контрольную сумму: число, строку или массив байтов.
func parseHint(raw json.RawMessage) model.ChecksumHint {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return model.ChecksumHint{}
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return model.ChecksumHint{}
		}
		return model.StringHint(s)

	case '[':
		var ints []int
		if err := json.Unmarshal(raw, &ints); err != nil {
			return model.ChecksumHint{}
		}
		b := make([]byte, 0, len(ints))
		for _, v := range ints {
			if v < 0 || v > 255 {
				return model.ChecksumHint{}
			}
			b = append(b, byte(v))
		}
		return model.BytesHint(b)

	default:
		s := string(raw)
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return model.IntegerHint(v)
		}
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			return model.UnsignedHint(v)
		}
		return model.ChecksumHint{}
	}
}

// looseInt читает целое, записанное числом или строкой.
func looseInt(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func stringField(data map[string]json.RawMessage, key string) string {
	raw, ok := data[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func senderName(s rawSender) string {
	if name := strings.TrimSpace(s.Card); name != "" {
		return name
	}
	return strings.TrimSpace(s.Nickname)
}
