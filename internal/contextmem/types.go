package contextmem

import "time"

// Qualification levels recognized in merges. Anything else is discarded.
const (
	NivelFrio   = "frio"
	NivelMorno  = "morno"
	NivelQuente = "quente"
)

// historyLimit caps historicoResumido to the most recent entries.
const historyLimit = 20

// Context is the structured cross-turn memory of a conversation. Field names
// are the wire format persisted in conversation state metadata, so they stay
// in Portuguese.
type Context struct {
	Lead              map[string]string `json:"lead,omitempty"`
	Interesse         Interesse         `json:"interesse,omitzero"`
	Qualificacao      Qualificacao      `json:"qualificacao,omitzero"`
	Situacao          Situacao          `json:"situacao,omitzero"`
	Objecoes          []string          `json:"objecoes,omitempty"`
	HistoricoResumido []string          `json:"historicoResumido,omitempty"`
	AcoesExecutadas   []string          `json:"acoesExecutadas,omitempty"`
	UltimaAtualizacao time.Time         `json:"ultimaAtualizacao"`
}

type Interesse struct {
	Principal   string   `json:"principal,omitempty"`
	Secundarios []string `json:"secundarios,omitempty"`
	Detalhes    string   `json:"detalhes,omitempty"`
}

type Qualificacao struct {
	PerguntasRespondidas []string `json:"perguntasRespondidas,omitempty"`
	InformacoesPendentes []string `json:"informacoesPendentes,omitempty"`
	Nivel                string   `json:"nivel,omitempty"`
}

type Situacao struct {
	ProblemaRelatado string `json:"problemaRelatado,omitempty"`
	Urgencia         string `json:"urgencia,omitempty"`
	Expectativas     string `json:"expectativas,omitempty"`
}

// Skeleton returns an empty context ready to merge into.
func Skeleton() Context {
	return Context{Lead: map[string]string{}}
}
