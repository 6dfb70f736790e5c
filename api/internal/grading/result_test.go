package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeGradingResultNil(t *testing.T) {
	require.Nil(t, NormalizeGradingResult(nil))
	require.Nil(t, NormalizeGradingResult([]any{}))
	require.Nil(t, NormalizeGradingResult("14/20"))
}

func TestNormalizeGradingResultEmptyQuestions(t *testing.T) {
	res := NormalizeGradingResult(map[string]any{"questions": []any{}})
	require.NotNil(t, res)
	assert.Equal(t, float64(0), res.AwardedTotal)
	assert.Equal(t, float64(0), res.MaxTotal)
	assert.Empty(t, res.Questions)
	assert.NotNil(t, res.ImprovementPoints)
}

func TestNormalizeGradingResultSums(t *testing.T) {
	res := NormalizeGradingResult(map[string]any{
		"resultats": []any{
			map[string]any{"id": float64(1), "titre": "Q1", "note": float64(3), "points_max": float64(4),
				"justification": "bien", "erreurs": []any{"signe"}},
			map[string]any{"question": "Q2", "score": "1,5", "sur": "2", "errors": "unité oubliée"},
			"garbage",
		},
		"appreciation": "Travail sérieux",
		"conseils":     []any{"relire", float64(2)},
	})
	require.NotNil(t, res)
	require.Len(t, res.Questions, 2)

	q1 := res.Questions[0]
	assert.Equal(t, GradedQuestion{ID: "1", Title: "Q1", AwardedPoints: 3, MaxPoints: 4,
		Justification: "bien", Mistakes: []string{"signe"}}, q1)

	q2 := res.Questions[1]
	assert.Equal(t, "2", q2.ID)
	assert.Equal(t, "Q2", q2.Title)
	assert.Equal(t, 1.5, q2.AwardedPoints)
	assert.Equal(t, float64(2), q2.MaxPoints)
	assert.Equal(t, []string{"unité oubliée"}, q2.Mistakes)

	assert.Equal(t, 4.5, res.AwardedTotal)
	assert.Equal(t, float64(6), res.MaxTotal)
	assert.Equal(t, "Travail sérieux", res.Comment)
	assert.Equal(t, []string{"relire", "2"}, res.ImprovementPoints)
}

func TestNormalizeGradingResultExplicitTotals(t *testing.T) {
	res := NormalizeGradingResult(map[string]any{
		"note_globale": "14/20",
		"notes": []any{
			map[string]any{"note": "3/5"},
		},
		"commentaire_general": "ok",
	})
	require.NotNil(t, res)
	assert.Equal(t, float64(14), res.AwardedTotal)
	assert.Equal(t, float64(20), res.MaxTotal)
	assert.Equal(t, float64(3), res.Questions[0].AwardedPoints)
	assert.Equal(t, float64(5), res.Questions[0].MaxPoints)

	res = NormalizeGradingResult(map[string]any{
		"awarded_total": float64(7),
		"total":         float64(10),
		"questions":     []any{map[string]any{"points": float64(2), "max": float64(3)}},
	})
	assert.Equal(t, float64(7), res.AwardedTotal)
	assert.Equal(t, float64(10), res.MaxTotal)
}

func TestNormalizeGradingResultMistypedFields(t *testing.T) {
	res := NormalizeGradingResult(map[string]any{
		"questions": []any{
			map[string]any{"note": true, "max": map[string]any{}, "erreurs": float64(3), "justification": []any{}},
		},
		"comment": float64(12),
	})
	require.NotNil(t, res)
	q := res.Questions[0]
	assert.Equal(t, float64(0), q.AwardedPoints)
	assert.Equal(t, float64(0), q.MaxPoints)
	assert.Empty(t, q.Mistakes)
	assert.Empty(t, q.Justification)
	assert.Equal(t, "12", res.Comment)
}
