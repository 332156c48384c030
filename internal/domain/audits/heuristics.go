package audits

import (
	"regexp"
	"strings"
)

// Heuristics are Nielsen's ten usability heuristics in their fixed order.
var Heuristics = [10]string{
	"Visibilidade do status do sistema",
	"Correspondência entre sistema e mundo real",
	"Controle e liberdade do usuário",
	"Consistência e padrões",
	"Prevenção de erros",
	"Reconhecimento em vez de recordação",
	"Flexibilidade e eficiência de uso",
	"Estética e design minimalista",
	"Ajuda aos usuários a reconhecer, diagnosticar e se recuperar de erros",
	"Ajuda e documentação",
}

var heuristicAliases = []struct {
	name  string
	index int
}{
	{"visibility of system status", 0},
	{"match between system and the real world", 1},
	{"match between the system and the real world", 1},
	{"correspondencia entre o sistema e o mundo real", 1},
	{"user control and freedom", 2},
	{"consistency and standards", 3},
	{"error prevention", 4},
	{"recognition rather than recall", 5},
	{"flexibility and efficiency of use", 6},
	{"aesthetic and minimalist design", 7},
	{"estetica e design minimalistas", 7},
	{"help users recognize, diagnose, and recover from errors", 8},
	{"help users recognize, diagnose and recover from errors", 8},
	{"ajudar os usuarios a reconhecer, diagnosticar e recuperar-se de erros", 8},
	{"help and documentation", 9},
}

var ordinalPrefix = regexp.MustCompile(`^(?:[Hh]\s*)?\d{1,2}\s*[.:)\-]?\s*`)

var heuristicIndex = func() map[string]int {
	m := make(map[string]int, len(Heuristics)+len(heuristicAliases))
	for i, h := range Heuristics {
		m[Fold(h)] = i
	}
	for _, a := range heuristicAliases {
		m[Fold(a.name)] = a.index
	}
	return m
}()

// CanonicalHeuristic maps English names, numbered prefixes ("H1 - ...", "3. ...")
// and accent or case variants to the canonical name. Unknown names are
// returned trimmed and reported as not found.
func CanonicalHeuristic(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	key := Fold(stripOrdinal(trimmed))
	if i, ok := heuristicIndex[key]; ok {
		return Heuristics[i], true
	}
	return trimmed, false
}

func stripOrdinal(s string) string {
	return ordinalPrefix.ReplaceAllString(s, "")
}
