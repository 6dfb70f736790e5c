package anthropic

import (
	"encoding/json"
	"regexp"
	"slices"
	"strings"
)

// reply хранит разобранный ответ, либо нормальный финальный текст,
// либо почти пустой финал при непустом рассуждении.
type reply interface {
	isReply()
}

type finalAnswer struct {
	text string
}

type reasoningOnly struct {
	reasoning string
	text      string
}

func (finalAnswer) isReply()   {}
func (reasoningOnly) isReply() {}

// classify берёт самый длинный text-блок. Если он короче minFinalAnswerLen
// и есть thinking, ответ считается reasoningOnly.
func classify(blocks []responseBlock) reply {
	var longest string
	var reasoning strings.Builder
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if t := strings.TrimSpace(b.Text); len(t) > len(longest) {
				longest = t
			}
		case "thinking":
			if t := strings.TrimSpace(b.Thinking); t != "" {
				if reasoning.Len() > 0 {
					reasoning.WriteByte('\n')
				}
				reasoning.WriteString(t)
			}
		}
	}
	if len(longest) >= minFinalAnswerLen || reasoning.Len() == 0 {
		return finalAnswer{text: longest}
	}
	return reasoningOnly{reasoning: reasoning.String(), text: longest}
}

// recoverers пробуются по порядку только на ветке reasoningOnly.
var recoverers = []func(string) (string, bool){
	recoverByKeys,
	recoverByBraceScan,
}

func resolve(r reply) string {
	switch v := r.(type) {
	case finalAnswer:
		return v.text
	case reasoningOnly:
		for _, rec := range recoverers {
			if s, ok := rec(v.reasoning); ok {
				return s
			}
		}
		// не нашли: отдаём короткий текст, дальше разберётся декодер
		return v.text
	}
	return ""
}

// объект, в собственных ключах которого (до вложенных скобок) есть доменный ключ
var domainKeyRe = regexp.MustCompile(`\{[^{}]*"(?:questions|total|note_globale)"\s*:`)

func recoverByKeys(reasoning string) (string, bool) {
	spans := balancedSpans(reasoning)
	for _, loc := range domainKeyRe.FindAllStringIndex(reasoning, -1) {
		if end, ok := spans[loc[0]]; ok && json.Valid([]byte(reasoning[loc[0]:end])) {
			return reasoning[loc[0]:end], true
		}
	}
	return "", false
}

const minRecoveredLen = 50

func recoverByBraceScan(reasoning string) (string, bool) {
	spans := balancedSpans(reasoning)
	starts := make([]int, 0, len(spans))
	for start, end := range spans {
		if end-start > minRecoveredLen {
			starts = append(starts, start)
		}
	}
	slices.Sort(starts)
	for _, start := range starts {
		if span := reasoning[start:spans[start]]; json.Valid([]byte(span)) {
			return span, true
		}
	}
	return "", false
}

// balancedSpans за один проход находит все парные {...}: начало -> конец (не включая).
// Кавычки учитываются только внутри скобок, незакрытые '{' просто остаются в стеке.
func balancedSpans(s string) map[int]int {
	spans := map[int]int{}
	var open []int
	inStr, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = len(open) > 0
		case '{':
			open = append(open, i)
		case '}':
			if n := len(open); n > 0 {
				spans[open[n-1]] = i + 1
				open = open[:n-1]
			}
		}
	}
	return spans
}
