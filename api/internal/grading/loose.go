package grading

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Хелперы для разбора "свободного" JSON от моделей: ключи плавают,
// числа приходят строками ("7,5", "10 pts", "14/20").

var numberRe = regexp.MustCompile(`^[+-]?\d+(?:[.,]\d+)?`)

// firstPresent возвращает значение первого ключа из keys, который есть в m и не null.
func firstPresent(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// firstList: первый ключ, значение которого массив.
func firstList(m map[string]any, keys ...string) ([]any, bool) {
	for _, k := range keys {
		if l, ok := m[k].([]any); ok {
			return l, true
		}
	}
	return nil, false
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s, true
			}
		case float64, int, int64, json.Number:
			return stringify(v), true
		}
	}
	return "", false
}

func firstNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if n, ok := toNumber(m[k]); ok {
			return n, true
		}
	}
	return 0, false
}

// toNumber понимает числа JSON и строки вида "7,5", "10 pts", "14/20" (берётся числитель).
func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = x
	case string:
		m := numberRe.FindString(strings.TrimSpace(n))
		if m == "" {
			return 0, false
		}
		x, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
		if err != nil {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// splitScore разбирает "14/20" и "14 / 20". ok=false, если дроби нет.
func splitScore(v any) (awarded, max float64, ok bool) {
	s, isStr := v.(string)
	if !isStr {
		return 0, 0, false
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, okA := toNumber(parts[0])
	b, okB := toNumber(parts[1])
	if !okA || !okB {
		return 0, 0, false
	}
	return a, b, true
}

// stringify превращает произвольное значение в строку; объекты и массивы уходят в JSON.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case int, int64:
		return fmt.Sprint(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// stringList: массив строк (не строки стрингифаются), одиночная строка становится списком из одного.
func stringList(v any) []string {
	out := []string{}
	switch x := v.(type) {
	case []any:
		for _, it := range x {
			if s := stringify(it); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(x); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}
