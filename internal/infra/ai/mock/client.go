package mock

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/uxnareal/audit-api/internal/domain/ai"
	"github.com/uxnareal/audit-api/internal/domain/audits"
)

// Client returns a fixed, schema-valid analysis without calling any model.
// Used for local runs where no provider key is configured.
type Client struct{}

func (Client) Name() string { return "mock" }

func (Client) Complete(_ context.Context, in ai.Request) (string, error) {
	by := make(map[string]audits.HeuristicScore, len(audits.Heuristics))
	for _, h := range audits.Heuristics {
		by[h] = audits.HeuristicScore{Score: 8, Descriptor: "Bom", Description: "Pequenas melhorias possíveis"}
	}

	images := make([]audits.ImageAnalysis, 0, len(in.Images))
	for i, img := range in.Images {
		ia := audits.ImageAnalysis{Sequence: img.Sequence, Role: audits.Role(img.Role), Violations: []audits.Violation{}}
		// Example: one low severity finding on the first screen
		if i == 0 {
			ia.Violations = append(ia.Violations, audits.Violation{
				Heuristic: audits.Heuristics[0],
				Location: &audits.Location{
					Coordinates:     &audits.Coordinates{X: 0, Y: 0, Width: 100, Height: 40},
					VisualReference: &audits.VisualReference{Element: "cabeçalho", Position: "topo", Context: "tela inicial"},
				},
				Severity: audits.Severity{
					Level:       audits.SeverityLow,
					Description: "Pequena melhoria desejável",
					Rationale:   "Resultado de demonstração",
				},
				Description:    "Indicador de progresso ausente no início do fluxo.",
				Impact:         "O usuário não sabe quantas etapas faltam.",
				Recommendation: "Exibir um indicador de etapas no topo da tela.",
			})
		}
		images = append(images, ia)
	}

	res := audits.AnalysisResult{
		Scores: audits.Scores{
			Overall:     audits.HeuristicScore{Score: 85, Descriptor: "Bom", Description: "Resultado de demonstração"},
			ByHeuristic: by,
		},
		Analysis: audits.Analysis{Images: images},
	}
	b, err := json.Marshal(res)
	if err != nil {
		return "", eris.Wrap(err, "mock: marshal result")
	}
	return string(b), nil
}
