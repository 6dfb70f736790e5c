package util

import (
	"encoding/base64"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// SniffMimeForOCR возвращает значение mimeType для Yandex OCR по содержимому.
func SniffMimeForOCR(b []byte) string {
	switch mimetype.Detect(b).String() {
	case "image/jpeg":
		return "JPEG"
	case "image/png":
		return "PNG"
	case "application/pdf":
		return "PDF"
	}
	return ""
}

// OCRMimeFromHTTP переводит HTTP media type в перечисление Yandex OCR.
func OCRMimeFromHTTP(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return "JPEG"
	case "image/png":
		return "PNG"
	case "application/pdf":
		return "PDF"
	}
	return ""
}

func MakeDataURL(mime, b64 string) string {
	return "data:" + mime + ";base64," + b64
}

// DecodeBase64MaybeDataURL декодирует base64. Для data: URI дополнительно возвращает MIME из префикса.
func DecodeBase64MaybeDataURL(s string) ([]byte, string, error) {
	payload, hintMIME := SplitDataURL(s)
	// сначала стандартный, затем URL-safe
	if b, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return b, hintMIME, nil
	} else if b2, err2 := base64.URLEncoding.DecodeString(payload); err2 == nil {
		return b2, hintMIME, nil
	} else {
		return nil, "", err
	}
}

// SplitDataURL отрезает префикс data:<mime>;base64, и возвращает payload и MIME.
// Строка без префикса возвращается как есть (trim), MIME пустой.
func SplitDataURL(s string) (string, string) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return s, ""
	}
	idx := strings.IndexByte(s, ',')
	if idx <= 0 {
		return s, ""
	}
	meta := s[len("data:"):idx] // "<mime>;base64"
	if semi := strings.IndexByte(meta, ';'); semi >= 0 {
		meta = meta[:semi]
	}
	return s[idx+1:], meta
}

// PickMIME: явный MIME, затем подсказка из data: URI, иначе определяем по байтам.
func PickMIME(explicit, hint string, data []byte) string {
	if exp := strings.TrimSpace(explicit); exp != "" {
		return exp
	}
	if h := strings.TrimSpace(hint); h != "" {
		return h
	}
	if len(data) > 0 {
		if mt := mimetype.Detect(data); mt != nil {
			return mt.String()
		}
	}
	return "image/jpeg"
}
