package contextmem

import (
	"strings"
	"time"
)

// Merge folds an extracted delta into an existing context. Merging is
// monotonic: known facts are never removed, blank values never overwrite,
// and array fields grow as sets. The two exceptions are the pruning of
// informacoesPendentes entries that were answered and the history cap.
func Merge(existing, delta Context) Context {
	merged := existing
	if merged.Lead == nil {
		merged.Lead = map[string]string{}
	} else {
		lead := make(map[string]string, len(existing.Lead))
		for k, v := range existing.Lead {
			lead[k] = v
		}
		merged.Lead = lead
	}

	for key, value := range delta.Lead {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k == "" || v == "" {
			continue
		}
		merged.Lead[k] = v
	}

	if v := strings.TrimSpace(delta.Interesse.Principal); v != "" {
		merged.Interesse.Principal = v
	}
	merged.Interesse.Secundarios = appendUnique(existing.Interesse.Secundarios, delta.Interesse.Secundarios)
	if v := strings.TrimSpace(delta.Interesse.Detalhes); v != "" {
		merged.Interesse.Detalhes = v
	}

	answered := appendUnique(existing.Qualificacao.PerguntasRespondidas, delta.Qualificacao.PerguntasRespondidas)
	merged.Qualificacao.PerguntasRespondidas = answered
	pending := appendUnique(existing.Qualificacao.InformacoesPendentes, delta.Qualificacao.InformacoesPendentes)
	merged.Qualificacao.InformacoesPendentes = subtract(pending, answered)
	switch strings.ToLower(strings.TrimSpace(delta.Qualificacao.Nivel)) {
	case NivelFrio, NivelMorno, NivelQuente:
		merged.Qualificacao.Nivel = strings.ToLower(strings.TrimSpace(delta.Qualificacao.Nivel))
	}

	if v := strings.TrimSpace(delta.Situacao.ProblemaRelatado); v != "" {
		merged.Situacao.ProblemaRelatado = v
	}
	switch strings.ToLower(strings.TrimSpace(delta.Situacao.Urgencia)) {
	case "baixa", "media", "alta":
		merged.Situacao.Urgencia = strings.ToLower(strings.TrimSpace(delta.Situacao.Urgencia))
	}
	if v := strings.TrimSpace(delta.Situacao.Expectativas); v != "" {
		merged.Situacao.Expectativas = v
	}

	merged.Objecoes = appendUnique(existing.Objecoes, delta.Objecoes)

	history := appendUnique(existing.HistoricoResumido, delta.HistoricoResumido)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	merged.HistoricoResumido = history

	merged.AcoesExecutadas = appendUnique(existing.AcoesExecutadas, delta.AcoesExecutadas)

	merged.UltimaAtualizacao = time.Now().UTC()
	return merged
}

// RecordAction appends executed commands to the audit trail.
func RecordAction(c Context, actions ...string) Context {
	appended := false
	trail := append([]string{}, c.AcoesExecutadas...)
	for _, action := range actions {
		if trimmed := strings.TrimSpace(action); trimmed != "" {
			trail = append(trail, trimmed)
			appended = true
		}
	}
	if !appended {
		return c
	}
	c.AcoesExecutadas = trail
	c.UltimaAtualizacao = time.Now().UTC()
	return c
}

func appendUnique(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	result := append([]string{}, existing...)
	for _, s := range existing {
		seen[strings.TrimSpace(s)] = struct{}{}
	}
	for _, s := range incoming {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

func subtract(items, remove []string) []string {
	if len(items) == 0 {
		return items
	}
	drop := make(map[string]struct{}, len(remove))
	for _, s := range remove {
		drop[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	result := make([]string, 0, len(items))
	for _, s := range items {
		if _, ok := drop[strings.ToLower(strings.TrimSpace(s))]; ok {
			continue
		}
		result = append(result, s)
	}
	return result
}
