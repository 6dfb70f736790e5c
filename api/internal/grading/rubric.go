// Package grading приводит "свободный" JSON моделей к двум каноническим
// формам: бареме (Rubric) и проверенная копия (GradingResult).
//
// Обе функции тотальные: не паникуют и не требуют валидного входа.
package grading

import (
	"fmt"
	"strconv"
)

// PlaceholderCriterion подставляется, когда у секции нет ни одного критерия.
const PlaceholderCriterion = "Critère à préciser"

var (
	sectionListKeys   = []string{"questions", "exercices", "items", "criteres", "bareme"}
	sectionIDKeys     = []string{"id", "numero"}
	sectionTitleKeys  = []string{"titre", "title", "question", "nom", "name", "intitule"}
	sectionPointsKeys = []string{"points", "note_max", "max", "bareme"}
	criteriaListKeys  = []string{"criteres", "criteria", "details"}
	criteriaTextKeys  = []string{"description", "justification"}

	criterionTextKeys   = []string{"description", "descriptif", "texte", "text", "critere", "label", "intitule"}
	criterionPointsKeys = []string{"points", "note", "bareme", "max"}
	criterionRefKeys    = []string{"question", "question_ref", "ref"}
)

// NormalizeRubric строит Rubric из ответа модели. Для null и не-объектов
// возвращает пустой бареме с total=0.
func NormalizeRubric(v any) Rubric {
	out := Rubric{Sections: []RubricSection{}}

	var list []any
	switch x := v.(type) {
	case map[string]any:
		list, _ = firstList(x, sectionListKeys...)
	case []any:
		list = x
	default:
		return out
	}

	var sum float64
	for i, item := range list {
		sec := normalizeSection(i, item)
		sum += sec.Points
		out.Sections = append(out.Sections, sec)
	}

	out.Total = sum
	if m, ok := v.(map[string]any); ok {
		if t, ok := toNumber(m["total"]); ok {
			out.Total = nonNegative(t)
		}
	}
	return out
}

// PlaceholderRubric: заглушка, когда из ответа ничего не достать.
func PlaceholderRubric() Rubric {
	return Rubric{
		Total: 0,
		Sections: []RubricSection{{
			ID:       "1",
			Title:    "Item 1",
			Criteria: []RubricCriterion{{Description: PlaceholderCriterion}},
		}},
		Partial: true,
	}
}

func normalizeSection(i int, item any) RubricSection {
	sec := RubricSection{
		ID:    strconv.Itoa(i + 1),
		Title: fmt.Sprintf("Item %d", i+1),
	}

	m, ok := item.(map[string]any)
	if !ok {
		// секция строкой: считаем её заголовком
		if s := stringify(item); s != "" {
			sec.Title = s
		}
		sec.Criteria = []RubricCriterion{{Description: PlaceholderCriterion}}
		return sec
	}

	if id, ok := firstString(m, sectionIDKeys...); ok {
		sec.ID = id
	}
	if t, ok := firstString(m, sectionTitleKeys...); ok {
		sec.Title = t
	}
	if p, ok := firstNumber(m, sectionPointsKeys...); ok {
		sec.Points = nonNegative(p)
	}

	criteria, explicit := normalizeCriteria(m)
	switch {
	case len(criteria) == 0:
		sec.Criteria = []RubricCriterion{{Description: PlaceholderCriterion, Points: sec.Points}}
	case explicit:
		var sum float64
		for _, c := range criteria {
			sum += c.Points
		}
		sec.Points = sum
		sec.Criteria = criteria
	default:
		sec.Criteria = criteria
	}
	return sec
}

// normalizeCriteria возвращает критерии и признак того, что хоть у одного
// баллы указаны явно.
func normalizeCriteria(m map[string]any) ([]RubricCriterion, bool) {
	if list, ok := firstList(m, criteriaListKeys...); ok {
		out := make([]RubricCriterion, 0, len(list))
		explicit := false
		for _, it := range list {
			c, hasPoints := normalizeCriterion(it)
			if c.Description == "" {
				continue
			}
			explicit = explicit || hasPoints
			out = append(out, c)
		}
		return out, explicit
	}

	// одиночное текстовое поле: критерий на всю секцию
	if s, ok := firstString(m, criteriaTextKeys...); ok {
		p, _ := firstNumber(m, sectionPointsKeys...)
		return []RubricCriterion{{Description: s, Points: nonNegative(p)}}, false
	}
	return nil, false
}

func normalizeCriterion(v any) (RubricCriterion, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return RubricCriterion{Description: stringify(v)}, false
	}

	var c RubricCriterion
	if s, ok := firstString(m, criterionTextKeys...); ok {
		c.Description = s
	} else {
		c.Description = stringify(m)
	}
	if r, ok := firstString(m, criterionRefKeys...); ok {
		c.QuestionRef = r
	}
	p, hasPoints := firstNumber(m, criterionPointsKeys...)
	c.Points = nonNegative(p)
	return c, hasPoints
}
