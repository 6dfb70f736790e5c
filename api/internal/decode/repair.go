package decode

import (
	"regexp"
	"strings"
)

// RepairRule: одна текстовая правка кандидата в JSON.
type RepairRule struct {
	Name  string
	Apply func(string) string
}

// RepairRules применяются в этом порядке, все правки чисто текстовые.
//
// QuoteSingles меняет все апострофы, в том числе внутри строк
// ("l'élève" станет "l"élève"). Свободный текст при этом может пострадать,
// нормализаторы это переживают.
var RepairRules = []RepairRule{
	{Name: "strip_line_comments", Apply: StripLineComments},
	{Name: "strip_trailing_commas", Apply: StripTrailingCommas},
	{Name: "quote_singles", Apply: QuoteSingles},
	{Name: "balance_brackets", Apply: BalanceBrackets},
}

var (
	// // считается комментарием только в начале строки или после разделителя,
	// "https://..." не трогаем
	lineCommentRe   = regexp.MustCompile(`(?m)(^|[\s,{\[])//[^\n]*`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// Repair применяет все RepairRules.
func Repair(s string) string {
	for _, r := range RepairRules {
		s = r.Apply(s)
	}
	return s
}

func StripLineComments(s string) string {
	return lineCommentRe.ReplaceAllString(s, "$1")
}

func StripTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

func QuoteSingles(s string) string {
	return strings.ReplaceAll(s, "'", `"`)
}

// BalanceBrackets дописывает незакрытые '}' и ']' (сначала внутренние).
// Скобки внутри строк не считаются, незакрытая строка закрывается первой.
func BalanceBrackets(s string) string {
	var (
		stack   []byte
		inStr   bool
		escaped bool
	)
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
			inStr = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if n := len(stack); n > 0 && stack[n-1] == c {
				stack = stack[:n-1]
			}
		}
	}
	if len(stack) == 0 && !inStr {
		return s
	}

	var b strings.Builder
	if inStr {
		b.WriteString(s)
		b.WriteByte('"')
	} else {
		b.WriteString(strings.TrimRight(s, " \t\r\n,"))
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
