// Package decode достаёт JSON из свободного ответа модели.
//
// Стратегии идут по порядку, выигрывает первая давшая валидный JSON:
// весь текст; фрагмент от первой '{' до последней '}'; он же после починки;
// блок ``` (как есть и после починки); в самом конце jsonrepair по фрагменту
// или блоку. Ошибок не бывает, только ok=false.
package decode

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Strategy: какая стратегия дала результат.
type Strategy string

const (
	StrategyNone          Strategy = "none"
	StrategyDirect        Strategy = "direct"
	StrategyBraceSpan     Strategy = "brace_span"
	StrategyRepairedSpan  Strategy = "repaired_span"
	StrategyFence         Strategy = "fence"
	StrategyRepairedFence Strategy = "repaired_fence"
	StrategyLibraryRepair Strategy = "library_repair"
)

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\\r?\\n?(.*?)```")

// Decode возвращает значение и признак успеха.
func Decode(text string) (any, bool) {
	v, s := DecodeStrategy(text)
	return v, s != StrategyNone
}

// DecodeStrategy как Decode, но ещё и с именем стратегии.
func DecodeStrategy(text string) (any, Strategy) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, StrategyNone
	}

	if v, ok := parse(trimmed); ok {
		return v, StrategyDirect
	}

	span, hasSpan := BraceSpan(trimmed)
	if hasSpan {
		if v, ok := parse(span); ok {
			return v, StrategyBraceSpan
		}
		if v, ok := parse(Repair(span)); ok {
			return v, StrategyRepairedSpan
		}
	}

	inner, hasFence := FencedBlock(trimmed)
	if hasFence {
		if v, ok := parse(inner); ok {
			return v, StrategyFence
		}
		if v, ok := parse(Repair(inner)); ok {
			return v, StrategyRepairedFence
		}
	}

	for _, candidate := range []struct {
		text string
		ok   bool
	}{{span, hasSpan}, {inner, hasFence}} {
		if !candidate.ok {
			continue
		}
		if v, ok := libraryRepair(candidate.text); ok {
			return v, StrategyLibraryRepair
		}
	}

	return nil, StrategyNone
}

// BraceSpan возвращает текст от первой '{' до последней '}'.
// Если ответ обрезан и '}' после первой '{' нет, отдаём хвост от '{',
// чтобы починка могла его закрыть.
func BraceSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(text, '}')
	if end < start {
		return text[start:], true
	}
	return text[start : end+1], true
}

// FencedBlock возвращает содержимое первого блока ```.
func FencedBlock(text string) (string, bool) {
	m := fenceRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	inner := strings.TrimSpace(m[1])
	if inner == "" {
		return "", false
	}
	return inner, true
}

func parse(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

func libraryRepair(s string) (any, bool) {
	fixed, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, false
	}
	v, ok := parse(fixed)
	if !ok {
		return nil, false
	}
	// голая строка означает, что jsonrepair просто закавычил прозу
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	}
	return nil, false
}
