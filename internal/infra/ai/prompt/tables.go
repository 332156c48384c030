package prompt

import "github.com/uxnareal/audit-api/internal/domain/audits"

type productGuidance struct {
	Label             string
	Focus             string
	KeyConsiderations []string
}

type deviceGuidance struct {
	Label         string
	Constraints   []string
	Opportunities []string
}

type interactionGuidance struct {
	PrimaryGoals   []string
	CriticalPoints []string
}

type flowGuidance struct {
	SuccessCriteria []string
	RiskAreas       []string
}

var products = map[audits.ProductType]productGuidance{
	audits.ProductMarketplace: {
		Label: "Marketplace",
		Focus: "conversão, transações, comparação de produtos",
		KeyConsiderations: []string{
			"Apresentação clara de produtos",
			"Processo de checkout otimizado",
			"Informações críticas visíveis",
		},
	},
	audits.ProductSocial: {
		Label: "Rede Social",
		Focus: "engajamento, criação e consumo de conteúdo",
		KeyConsiderations: []string{
			"Sinais sociais visíveis",
			"Incentivo à criação de conteúdo",
			"Controles de privacidade acessíveis",
		},
	},
	audits.ProductSaaS: {
		Label: "SaaS/Web App",
		Focus: "produtividade, colaboração, gestão",
		KeyConsiderations: []string{
			"Consistência entre módulos",
			"Ações frequentes acessíveis",
			"Comunicação clara de estado",
		},
	},
	audits.ProductVideo: {
		Label: "Conteúdo de Vídeo",
		Focus: "consumo, progresso, retenção",
		KeyConsiderations: []string{
			"Controles de reprodução acessíveis",
			"Navegação fluida entre conteúdos",
			"Interface não intrusiva",
		},
	},
	audits.ProductAudio: {
		Label: "Conteúdo de Áudio",
		Focus: "experiência auditiva, controle de reprodução",
		KeyConsiderations: []string{
			"Controles utilizáveis sem tela",
			"Feedback por múltiplos canais",
			"Transições naturais",
		},
	},
	audits.ProductFinance: {
		Label: "Financeiro e Gestão",
		Focus: "segurança, clareza, confiança",
		KeyConsiderations: []string{
			"Transmissão de confiança visual",
			"Destaque para informações críticas",
			"Confirmação adequada de ações",
		},
	},
}

var devices = map[audits.Device]deviceGuidance{
	audits.DeviceWeb: {
		Label:         "Web",
		Constraints:   []string{"Maior espaço, mais recursos"},
		Opportunities: []string{"Multitarefa, atalhos de teclado"},
	},
	audits.DeviceTablet: {
		Label:         "Tablet",
		Constraints:   []string{"Orientação variável"},
		Opportunities: []string{"Interação touch, mobilidade"},
	},
	audits.DeviceMobile: {
		Label:         "Mobile",
		Constraints:   []string{"Espaço limitado"},
		Opportunities: []string{"Contexto móvel, portabilidade"},
	},
}

var interactions = map[string]interactionGuidance{
	"login":           {[]string{"Segurança, simplicidade"}, []string{"Recuperação de senha, validação"}},
	"onboarding":      {[]string{"Demonstração de valor, aprendizado"}, []string{"Ritmo personalizável, quantidade de informação"}},
	"consultation":    {[]string{"Clareza, organização"}, []string{"Estrutura do conteúdo, navegação"}},
	"edition":         {[]string{"Flexibilidade, prevenção de erros"}, []string{"Salvamento, histórico"}},
	"purchase":        {[]string{"Confiança, clareza"}, []string{"Informações críticas, confirmação"}},
	"deletion":        {[]string{"Prevenção de erros, confirmação"}, []string{"Irreversibilidade, impacto"}},
	"search":          {[]string{"Relevância, refinamento"}, []string{"Resultados, filtros"}},
	"social":          {[]string{"Engajamento, moderação"}, []string{"Privacidade, feedback"}},
	"personalization": {[]string{"Controle, preview"}, []string{"Descoberta, reversibilidade"}},
	"support":         {[]string{"Acessibilidade, clareza"}, []string{"Contexto, solução"}},
	"navigation":      {[]string{"Orientação, retorno"}, []string{"Estrutura, progresso"}},
	"sharing":         {[]string{"Segurança, controle"}, []string{"Audiência, formato"}},
	"conclusion":      {[]string{"Progresso, contexto"}, []string{"Confirmação, próximos passos"}},
}

var flows = map[string]flowGuidance{
	"main":         {[]string{"Eficiência, clareza"}, []string{"Distrações, desvios desnecessários"}},
	"alternative":  {[]string{"Clareza do desvio, retorno fácil"}, []string{"Confusão, perda de contexto"}},
	"error":        {[]string{"Clareza, solução"}, []string{"Frustração, abandono"}},
	"shortcut":     {[]string{"Eficiência, acesso rápido"}, []string{"Confusão, perda de contexto"}},
	"exploratory":  {[]string{"Descoberta, organização"}, []string{"Sobrecarga, desorientação"}},
	"confirmation": {[]string{"Clareza, prevenção"}, []string{"Atrito, hesitação"}},
	"return":       {[]string{"Continuidade, contexto"}, []string{"Perda de progresso, desorientação"}},
}

// form labels, folded, to guidance keys
var interactionLabels = map[string]string{
	"criacao":                "edition",
	"edicao":                 "edition",
	"personalizacao":         "personalization",
	"exclusao":               "deletion",
	"login":                  "login",
	"onboarding":             "onboarding",
	"cadastro":               "onboarding",
	"compra":                 "purchase",
	"busca":                  "search",
	"interacao social":       "social",
	"envio":                  "sharing",
	"compartilhamento":       "sharing",
	"solicitacao de suporte": "support",
	"consulta/leitura":       "consultation",
	"consulta":               "consultation",
	"navegacao":              "navigation",
	"conclusao":              "conclusion",
}

var flowLabels = map[string]string{
	"principal / sucesso":   "main",
	"alternativo / excecao": "alternative",
	"erro / bloqueio":       "error",
	"exploratorio":          "exploratory",
	"retorno / recuperacao": "return",
	"atalho ou acelerado":   "shortcut",
	"confirmacao":           "confirmation",
}

var genericInteraction = interactionGuidance{
	PrimaryGoals:   []string{"Clareza, eficiência"},
	CriticalPoints: []string{"Feedback, prevenção de erros"},
}

var genericFlow = flowGuidance{
	SuccessCriteria: []string{"Conclusão da tarefa, clareza"},
	RiskAreas:       []string{"Abandono, desorientação"},
}

func lookupInteraction(label string) (interactionGuidance, bool) {
	k := audits.Fold(label)
	if g, ok := interactions[k]; ok {
		return g, true
	}
	if slug, ok := interactionLabels[k]; ok {
		return interactions[slug], true
	}
	return genericInteraction, false
}

func lookupFlow(label string) (flowGuidance, bool) {
	k := audits.Fold(label)
	if g, ok := flows[k]; ok {
		return g, true
	}
	if slug, ok := flowLabels[k]; ok {
		return flows[slug], true
	}
	return genericFlow, false
}
