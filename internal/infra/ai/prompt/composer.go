package prompt

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/uxnareal/audit-api/internal/domain/audits"
)

// ErrUnknownDimension means a context value has no guidance table entry.
// Contexts are validated before composing, so this is a programming error.
var ErrUnknownDimension = eris.New("prompt: no guidance for context dimension")

// Composer builds the heuristic-evaluation prompt. It holds no state.
type Composer struct{}

// systemPrompt fixes the persona and the JSON-only contract.
const systemPrompt = `Você é um especialista em UX que analisa produtos digitais com base nas 10 heurísticas de Nielsen.
Responda sempre com um único objeto JSON válido, sem markdown, sem blocos de código e sem comentários.

Regras:
- Siga exatamente o schema fornecido.
- "severity.level" deve ser um de: critical, high, medium, low (minúsculas).
- "scores.overall.score" vai de 0 a 100; cada "scores.byHeuristic.<nome>.score" vai de 0 a 10.
- "scores" é obrigatório e deve conter as 10 heurísticas, usando exatamente os nomes listados.
- Cada item de "analysis.images" usa o "sequence" e o "type" informados na legenda da imagem correspondente.
- Coordenadas em pixels relativos ao canto superior esquerdo da imagem.`

// Schema is the literal result contract the model must satisfy.
const Schema = `{
  "metadata": { "timestamp": string, "frameworkVersion": string,
                "analysisContext": { "productType": string, "device": string,
                                      "interaction": string, "flow": string } },
  "scores": {
    "overall": { "score": number, "descriptor": string, "description": string },
    "byHeuristic": { "<heuristicName>": { "score": number, "descriptor": string, "description": string }, ... }
  },
  "analysis": {
    "images": [
      { "sequence": number, "type": "start"|"iteration"|"end",
        "violations": [
          { "heuristic": string,
            "location": { "coordinates": {"x":number,"y":number,"width":number,"height":number},
                           "visualReference": {"element":string,"position":string,"context":string} },
            "severity": {"level":"critical"|"high"|"medium"|"low","description":string,"rationale":string},
            "description": string, "impact": string, "recommendation": string }
        ] }
    ]
  }
}`

// Compose maps a validated context to the prompt. Unknown product types or
// devices fail fast; interaction and flow labels without a table entry get
// generic guidance since they are free-form.
func (Composer) Compose(c audits.AnalysisContext) (audits.Prompt, error) {
	product, ok := products[c.ProductType]
	if !ok {
		return audits.Prompt{}, eris.Wrapf(ErrUnknownDimension, "productType %q", c.ProductType)
	}
	device, ok := devices[c.Device]
	if !ok {
		return audits.Prompt{}, eris.Wrapf(ErrUnknownDimension, "device %q", c.Device)
	}
	interaction, _ := lookupInteraction(c.InteractionType)
	flow, _ := lookupFlow(c.FlowType)

	var b strings.Builder
	b.WriteString("# Análise Heurística Contextual\n\n")

	b.WriteString("## Contexto da Análise\n")
	fmt.Fprintf(&b, "Você está analisando uma interface %s (%s) para dispositivo %s, com foco em interação do tipo %q, seguindo um fluxo %q.\n\n",
		product.Label, c.ProductType, device.Label, c.InteractionType, c.FlowType)
	b.WriteString("Características específicas:\n")
	fmt.Fprintf(&b, "- Tipo de Produto: %s\n", product.Focus)
	fmt.Fprintf(&b, "- Considerações-chave: %s\n", strings.Join(product.KeyConsiderations, ", "))
	fmt.Fprintf(&b, "- Dispositivo: %s\n", strings.Join(device.Constraints, ", "))
	fmt.Fprintf(&b, "- Oportunidades: %s\n", strings.Join(device.Opportunities, ", "))
	fmt.Fprintf(&b, "- Interação: %s\n", strings.Join(interaction.PrimaryGoals, ", "))
	fmt.Fprintf(&b, "- Pontos críticos: %s\n", strings.Join(interaction.CriticalPoints, ", "))
	fmt.Fprintf(&b, "- Fluxo: %s\n", strings.Join(flow.SuccessCriteria, ", "))
	fmt.Fprintf(&b, "- Áreas de risco: %s\n\n", strings.Join(flow.RiskAreas, ", "))

	b.WriteString("As imagens representam um fluxo completo: a imagem start mostra onde o usuário inicia a interação, as imagens iteration mostram o que acontece durante o fluxo e a imagem end mostra onde a interação termina.\n\n")

	b.WriteString("## Heurísticas Prioritárias\n")
	b.WriteString("Para este contexto específico, avalie as seguintes heurísticas:\n")
	for i, h := range audits.Heuristics {
		fmt.Fprintf(&b, "%d. %s\n", i+1, h)
	}
	b.WriteString("\nPara cada heurística, considere:\n")
	b.WriteString("- Impacto no contexto específico\n- Severidade da violação\n- Localização precisa na interface\n- Recomendações contextualizadas\n\n")

	b.WriteString(evaluationCriteria)

	b.WriteString("## Formato de Saída\n")
	b.WriteString("Forneça sua análise no seguinte formato JSON:\n")
	b.WriteString(Schema)
	b.WriteString("\n\n")

	b.WriteString("## Referências Técnicas\n")
	fmt.Fprintf(&b, "Considere as seguintes referências técnicas específicas para %s:\n", product.Label)
	b.WriteString("- Nielsen Norman Group: Heurísticas de Usabilidade\n- Material Design Guidelines\n- Apple Human Interface Guidelines\n- Web Content Accessibility Guidelines (WCAG)\n\n")
	fmt.Fprintf(&b, "Padrões específicos para %s:\n", device.Label)
	b.WriteString("- Tamanhos de toque recomendados\n- Padrões de navegação\n- Hierarquia visual\n- Feedback e resposta\n")

	return audits.Prompt{
		System:      systemPrompt,
		Instruction: b.String(),
		Heuristics:  append([]string(nil), audits.Heuristics[:]...),
	}, nil
}

const evaluationCriteria = `## Critérios de Avaliação

Pontuação por heurística (0-10):
0-2: Crítico - Impacto severo na experiência
3-5: Grave - Problemas significativos
6-7: Moderado - Oportunidades de melhoria
8-9: Bom - Pequenas melhorias possíveis
10: Excelente - Implementação ideal

Pontuação geral (0-100) segue as mesmas faixas multiplicadas por 10.

Severidade:
- critical: Impede a conclusão da tarefa
- high: Impacto significativo na experiência
- medium: Problemas notáveis mas gerenciáveis
- low: Pequenas melhorias desejáveis

`

// ImageCaption labels one image so the model can echo its sequence and type.
func (Composer) ImageCaption(sequence int, role audits.Role) string {
	return fmt.Sprintf("Imagem sequence=%d type=%s", sequence, role)
}
