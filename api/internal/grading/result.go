package grading

import "fmt"

var (
	questionListKeys = []string{"questions", "resultats", "notes"}

	questionIDKeys            = []string{"id", "numero", "question_id"}
	questionTitleKeys         = []string{"titre", "title", "question", "intitule", "nom"}
	questionAwardedKeys       = []string{"note", "score", "points"}
	questionMaxKeys           = []string{"points_max", "max", "bareme", "sur"}
	questionJustificationKeys = []string{"justification", "commentaire", "explication"}
	questionMistakeKeys       = []string{"erreurs", "errors"}

	awardedTotalKeys = []string{"note_globale", "note_totale", "total_obtenu", "awarded_total"}
	maxTotalKeys     = []string{"total", "note_max", "bareme_total", "max_total", "sur"}
	improvementKeys  = []string{"points_amelioration", "ameliorations", "axes_amelioration", "conseils", "improvements"}
	commentKeys      = []string{"commentaire_general", "appreciation", "commentaire", "comment"}
)

// NormalizeGradingResult строит GradingResult из ответа модели.
// nil только для null и не-объектов: "показать нечего" отличается от
// пустого, но валидного результата.
func NormalizeGradingResult(v any) *GradingResult {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	res := &GradingResult{
		Questions:         []GradedQuestion{},
		ImprovementPoints: []string{},
	}

	var sumAwarded, sumMax float64
	if list, ok := firstList(m, questionListKeys...); ok {
		for i, it := range list {
			qm, ok := it.(map[string]any)
			if !ok {
				continue
			}
			q := normalizeQuestion(i, qm)
			sumAwarded += q.AwardedPoints
			sumMax += q.MaxPoints
			res.Questions = append(res.Questions, q)
		}
	}

	// итоговые баллы: явное поле сверху, иначе сумма по вопросам
	res.AwardedTotal, res.MaxTotal = sumAwarded, sumMax
	maxSet := false
	if raw, ok := firstPresent(m, awardedTotalKeys...); ok {
		if a, b, ok := splitScore(raw); ok {
			res.AwardedTotal, res.MaxTotal = nonNegative(a), nonNegative(b)
			maxSet = true
		} else if a, ok := toNumber(raw); ok {
			res.AwardedTotal = nonNegative(a)
		}
	}
	if !maxSet {
		if b, ok := firstNumber(m, maxTotalKeys...); ok {
			res.MaxTotal = nonNegative(b)
		}
	}

	if raw, ok := firstPresent(m, improvementKeys...); ok {
		res.ImprovementPoints = stringList(raw)
	}
	if s, ok := firstString(m, commentKeys...); ok {
		res.Comment = s
	}
	return res
}

func normalizeQuestion(i int, m map[string]any) GradedQuestion {
	q := GradedQuestion{
		ID:       fmt.Sprint(i + 1),
		Title:    fmt.Sprintf("Question %d", i+1),
		Mistakes: []string{},
	}
	if id, ok := firstString(m, questionIDKeys...); ok {
		q.ID = id
	}
	if t, ok := firstString(m, questionTitleKeys...); ok {
		q.Title = t
	}

	// "note": "14/20" несёт и полученный, и максимальный балл
	if raw, ok := firstPresent(m, questionAwardedKeys...); ok {
		if a, b, ok := splitScore(raw); ok {
			q.AwardedPoints, q.MaxPoints = nonNegative(a), nonNegative(b)
		} else if a, ok := toNumber(raw); ok {
			q.AwardedPoints = nonNegative(a)
		}
	}
	if b, ok := firstNumber(m, questionMaxKeys...); ok {
		q.MaxPoints = nonNegative(b)
	}

	if s, ok := firstString(m, questionJustificationKeys...); ok {
		q.Justification = s
	}
	if raw, ok := firstPresent(m, questionMistakeKeys...); ok {
		q.Mistakes = stringList(raw)
	}
	return q
}
