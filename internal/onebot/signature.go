package onebot

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // OneBot v11 подписывает тело HMAC-SHA1
	"encoding/hex"
	"strings"
)

// SignatureHeader — заголовок подписи событий OneBot v11.
const SignatureHeader = "X-Signature"

// Sign возвращает значение заголовка X-Signature для тела body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature проверяет подпись события. Пустой secret — проверка отключена.
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" {
		return true
	}
	got, ok := strings.CutPrefix(strings.TrimSpace(header), "sha1=")
	if !ok {
		return false
	}
	want := Sign(secret, body)[len("sha1="):]
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(want))
}
