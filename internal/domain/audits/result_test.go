package audits

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *AnalysisResult {
	return &AnalysisResult{
		Metadata: Metadata{
			Timestamp:        "2026-01-02T03:04:05Z",
			FrameworkVersion: FrameworkVersion,
			AnalysisContext:  ResultContext{ProductType: "marketplace", Device: "web", Interaction: "Criação", Flow: "Principal / sucesso"},
		},
		Scores: Scores{
			Overall: HeuristicScore{Score: 72, Descriptor: "Bom", Description: "Fluxo claro"},
			ByHeuristic: map[string]HeuristicScore{
				Heuristics[0]: {Score: 8, Descriptor: "Bom", Description: "ok"},
			},
		},
		Analysis: Analysis{Images: []ImageAnalysis{{
			Sequence: 0,
			Role:     RoleStart,
			Violations: []Violation{{
				Heuristic: Heuristics[0],
				Location: &Location{
					Coordinates:     &Coordinates{X: 10, Y: 20, Width: 100, Height: 40},
					VisualReference: &VisualReference{Element: "botão", Position: "topo", Context: "header"},
				},
				Severity:       Severity{Level: SeverityHigh, Description: "d", Rationale: "r"},
				Description:    "sem feedback",
				Impact:         "usuário perdido",
				Recommendation: "mostrar loader",
			}},
		}}},
	}
}

func TestAnalysisResult_RoundTrip(t *testing.T) {
	in := sampleResult()
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out AnalysisResult
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, *in, out)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	img := generic["analysis"].(map[string]any)["images"].([]any)[0].(map[string]any)
	assert.Equal(t, "start", img["type"])
	assert.Contains(t, generic["metadata"].(map[string]any)["analysisContext"], "interaction")
}

func TestNormalize_CanonicalizesNamesAndLevels(t *testing.T) {
	r := sampleResult()
	r.Scores.ByHeuristic = map[string]HeuristicScore{"H1 - Visibility of system status": {Score: 7, Descriptor: "Bom"}}
	r.Analysis.Images[0].Violations[0].Heuristic = "5. error prevention"
	r.Analysis.Images[0].Violations[0].Severity.Level = "Crítica"
	r.Analysis.Images[0].Role = "END"

	require.NoError(t, r.Normalize())
	assert.Contains(t, r.Scores.ByHeuristic, Heuristics[0])
	v := r.Analysis.Images[0].Violations[0]
	assert.Equal(t, Heuristics[4], v.Heuristic)
	assert.Equal(t, SeverityCritical, v.Severity.Level)
	assert.Equal(t, RoleEnd, r.Analysis.Images[0].Role)
}

func TestNormalize_UnknownHeuristicKept(t *testing.T) {
	r := sampleResult()
	r.Analysis.Images[0].Violations[0].Heuristic = "Acessibilidade"
	require.NoError(t, r.Normalize())
	assert.Equal(t, "Acessibilidade", r.Analysis.Images[0].Violations[0].Heuristic)
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *AnalysisResult)
	}{
		{"missing images", func(r *AnalysisResult) { r.Analysis.Images = nil }},
		{"missing overall descriptor", func(r *AnalysisResult) { r.Scores.Overall = HeuristicScore{} }},
		{"overall out of range", func(r *AnalysisResult) { r.Scores.Overall.Score = 101 }},
		{"no heuristic scores", func(r *AnalysisResult) { r.Scores.ByHeuristic = nil }},
		{"heuristic score out of range", func(r *AnalysisResult) {
			r.Scores.ByHeuristic[Heuristics[0]] = HeuristicScore{Score: 11, Descriptor: "x"}
		}},
		{"bad severity", func(r *AnalysisResult) { r.Analysis.Images[0].Violations[0].Severity.Level = "urgent" }},
		{"blank heuristic", func(r *AnalysisResult) { r.Analysis.Images[0].Violations[0].Heuristic = "" }},
		{"bad image type", func(r *AnalysisResult) { r.Analysis.Images[0].Role = "middle" }},
		{"missing location", func(r *AnalysisResult) { r.Analysis.Images[0].Violations[0].Location = nil }},
		{"missing coordinates", func(r *AnalysisResult) { r.Analysis.Images[0].Violations[0].Location.Coordinates = nil }},
		{"missing visual reference", func(r *AnalysisResult) { r.Analysis.Images[0].Violations[0].Location.VisualReference = nil }},
		{"missing impact", func(r *AnalysisResult) { r.Analysis.Images[0].Violations[0].Impact = " " }},
		{"missing description", func(r *AnalysisResult) { r.Analysis.Images[0].Violations[0].Description = "" }},
		{"missing recommendation", func(r *AnalysisResult) { r.Analysis.Images[0].Violations[0].Recommendation = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleResult()
			tt.mutate(r)
			assert.True(t, IsValidation(r.Normalize()))
		})
	}
}

func TestNormalize_RejectsViolationWithoutLocationFromJSON(t *testing.T) {
	raw := `{"scores":{"overall":{"score":70,"descriptor":"Bom"},"byHeuristic":{"Ajuda e documentação":{"score":7,"descriptor":"Bom"}}},
	"analysis":{"images":[{"sequence":0,"type":"start","violations":[
	{"heuristic":"totally made up","severity":{"level":"low"},"recommendation":"r"}]}]}}`
	var r AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(raw), &r))

	err := r.Normalize()
	assert.True(t, IsValidation(err, CodeMissingField))
	assert.Contains(t, err.Error(), "violations.location")
}

func TestAlign_BySequence(t *testing.T) {
	r := sampleResult()
	r.Analysis.Images = []ImageAnalysis{
		{Sequence: 2, Violations: []Violation{{Heuristic: "c"}}},
		{Sequence: 0, Violations: []Violation{{Heuristic: "a"}}},
	}
	submitted := []Screenshot{
		{Sequence: 2, Role: RoleEnd},
		{Sequence: 0, Role: RoleStart},
		{Sequence: 1, Role: RoleIteration},
	}
	require.NoError(t, r.Align(submitted))

	require.Len(t, r.Analysis.Images, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{r.Analysis.Images[0].Sequence, r.Analysis.Images[1].Sequence, r.Analysis.Images[2].Sequence})
	assert.Equal(t, RoleStart, r.Analysis.Images[0].Role)
	assert.Equal(t, "a", r.Analysis.Images[0].Violations[0].Heuristic)
	assert.Empty(t, r.Analysis.Images[1].Violations)
	assert.NotNil(t, r.Analysis.Images[1].Violations)
	assert.Equal(t, "c", r.Analysis.Images[2].Violations[0].Heuristic)
}

func TestAlign_PositionalFallback(t *testing.T) {
	r := sampleResult()
	r.Analysis.Images = []ImageAnalysis{
		{Sequence: 1, Violations: []Violation{{Heuristic: "first"}}},
		{Sequence: 2, Violations: []Violation{{Heuristic: "second"}}},
	}
	require.NoError(t, r.Align([]Screenshot{{Sequence: 10, Role: RoleStart}, {Sequence: 20, Role: RoleEnd}}))

	assert.Equal(t, 10, r.Analysis.Images[0].Sequence)
	assert.Equal(t, "first", r.Analysis.Images[0].Violations[0].Heuristic)
	assert.Equal(t, "second", r.Analysis.Images[1].Violations[0].Heuristic)
}

func TestAlign_OffByOneSequencesMatchByPosition(t *testing.T) {
	r := sampleResult()
	r.Analysis.Images = []ImageAnalysis{
		{Sequence: 3, Violations: []Violation{{Heuristic: "third screen"}}},
		{Sequence: 1, Violations: []Violation{{Heuristic: "first screen"}}},
		{Sequence: 2, Violations: []Violation{{Heuristic: "second screen"}}},
	}
	require.NoError(t, r.Align([]Screenshot{
		{Sequence: 0, Role: RoleStart},
		{Sequence: 1, Role: RoleIteration},
		{Sequence: 2, Role: RoleEnd},
	}))

	require.Len(t, r.Analysis.Images, 3)
	assert.Equal(t, "first screen", r.Analysis.Images[0].Violations[0].Heuristic)
	assert.Equal(t, "second screen", r.Analysis.Images[1].Violations[0].Heuristic)
	assert.Equal(t, "third screen", r.Analysis.Images[2].Violations[0].Heuristic)
	for _, img := range r.Analysis.Images {
		assert.Len(t, img.Violations, 1)
	}
}

func TestAlign_RejectsUnmatchedSequence(t *testing.T) {
	r := sampleResult()
	r.Analysis.Images = []ImageAnalysis{
		{Sequence: 0, Violations: []Violation{{Heuristic: "a"}}},
		{Sequence: 7, Violations: []Violation{{Heuristic: "lost"}}},
	}
	before := r.Analysis.Images

	err := r.Align([]Screenshot{
		{Sequence: 0, Role: RoleStart},
		{Sequence: 1, Role: RoleIteration},
		{Sequence: 2, Role: RoleEnd},
	})
	assert.True(t, IsValidation(err, CodeInvalidSequence))
	assert.Equal(t, before, r.Analysis.Images)
}

func TestCountSeverities(t *testing.T) {
	r := sampleResult()
	r.Analysis.Images[0].Violations = append(r.Analysis.Images[0].Violations,
		Violation{Severity: Severity{Level: SeverityLow}},
		Violation{Severity: Severity{Level: SeverityLow}},
	)
	c := r.CountSeverities()
	assert.Equal(t, SeverityCounts{High: 1, Low: 2, Total: 3}, c)
}

func TestCanonicalHeuristic(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"Help and documentation", 9},
		{"consistencia e padroes", 3},
		{"H10: Ajuda e documentação", 9},
		{"Recognition rather than recall", 5},
		{"  estética e design minimalista  ", 7},
		{"Correspondência entre sistema e mundo real", 1},
	}
	for _, tt := range tests {
		got, ok := CanonicalHeuristic(tt.in)
		assert.True(t, ok, tt.in)
		assert.Equal(t, Heuristics[tt.want], got, tt.in)
	}
	got, ok := CanonicalHeuristic(" Outra ")
	assert.False(t, ok)
	assert.Equal(t, "Outra", got)
}
