package intent

import (
	"slices"
	"strings"
)

// lexicon is the hand-written keyword table of one language. Phrases are
// written the way people say them; [compile] normalizes them.
type lexicon struct {
	numbers map[string]string
	// rewrites maps normalized mis-hearings to their intended phrase. Targets
	// must already be normalized and must not contain any source phrase.
	rewrites [][2]string

	undo          []string
	negative      []string
	pointTriggers []string
	timeout       []string
	server        []string
	swap          []string

	teamA, teamB       []string
	sideA, sideB       []string
	genericA, genericB []string

	prepositions []string
	jersey       []string

	// compounds are checked in order before singles.
	compounds []skillPhrase
	// singles are checked in skill priority order: ace, block, attack,
	// opponent error.
	singles []skillPhrase
}

type skillPhrase struct {
	skill   Skill
	phrases []string
}

// vocabulary is a compiled [lexicon].
type vocabulary struct {
	numbers  map[string]string
	rewrites []rewrite

	undo          []string
	negative      []string
	pointTriggers []string
	timeout       []string
	server        []string
	swap          []string

	teamA, teamB       []string
	sideA, sideB       []string
	genericA, genericB []string

	prepositions map[string]bool
	jersey       map[string]bool

	compounds []skillPhrase
	singles   []skillPhrase

	// corrections holds the undo and negative phrases, longest first. Their
	// words are masked before team keywords are matched.
	corrections []string

	// stopwords holds every token that belongs to a command keyword. They
	// never count as evidence for a team or player name.
	stopwords map[string]bool
}

var vocabularies = map[Language]*vocabulary{
	Portuguese: compile(portuguese),
	English:    compile(english),
	Spanish:    compile(spanish),
}

func vocabularyFor(lang Language) *vocabulary {
	if v, ok := vocabularies[lang]; ok {
		return v
	}
	return vocabularies[Portuguese]
}

func compile(lx lexicon) *vocabulary {
	v := &vocabulary{
		numbers:      lx.numbers,
		prepositions: make(map[string]bool, len(lx.prepositions)),
		jersey:       make(map[string]bool, len(lx.jersey)),
		stopwords:    make(map[string]bool),
	}
	for _, rw := range lx.rewrites {
		v.rewrites = append(v.rewrites, rewrite{
			from: strings.Fields(rw[0]),
			to:   strings.Fields(rw[1]),
		})
	}

	norm := func(phrases []string) []string {
		out := make([]string, 0, len(phrases))
		for _, p := range phrases {
			n := normalize(p, v.numbers, v.rewrites)
			if n == "" {
				continue
			}
			out = append(out, n)
			for _, tok := range strings.Fields(n) {
				v.stopwords[tok] = true
			}
		}
		return out
	}

	v.undo = norm(lx.undo)
	v.negative = norm(lx.negative)
	v.corrections = slices.Concat(v.undo, v.negative)
	slices.SortStableFunc(v.corrections, func(a, b string) int {
		return len(b) - len(a)
	})
	v.pointTriggers = norm(lx.pointTriggers)
	v.timeout = norm(lx.timeout)
	v.server = norm(lx.server)
	v.swap = norm(lx.swap)
	v.teamA, v.teamB = norm(lx.teamA), norm(lx.teamB)
	v.sideA, v.sideB = norm(lx.sideA), norm(lx.sideB)
	v.genericA, v.genericB = norm(lx.genericA), norm(lx.genericB)
	for _, sp := range lx.compounds {
		v.compounds = append(v.compounds, skillPhrase{skill: sp.skill, phrases: norm(sp.phrases)})
	}
	for _, sp := range lx.singles {
		v.singles = append(v.singles, skillPhrase{skill: sp.skill, phrases: norm(sp.phrases)})
	}
	for _, p := range norm(lx.prepositions) {
		v.prepositions[p] = true
	}
	for _, j := range norm(lx.jersey) {
		v.jersey[j] = true
	}
	for word := range lx.numbers {
		v.stopwords[word] = true
	}
	return v
}

var portuguese = lexicon{
	numbers: map[string]string{
		"zero": "0", "um": "1", "uma": "1", "dois": "2", "duas": "2",
		"tres": "3", "quatro": "4", "cinco": "5", "seis": "6", "sete": "7",
		"oito": "8", "nove": "9", "dez": "10", "onze": "11", "doze": "12",
		"treze": "13", "catorze": "14", "quatorze": "14", "quinze": "15",
		"dezesseis": "16", "dezessete": "17", "dezoito": "18", "dezenove": "19",
		"vinte": "20",
	},
	rewrites: [][2]string{
		{"taimaute", "timeout"},
		{"taimaut", "timeout"},
		{"taim aute", "timeout"},
		{"taim aut", "timeout"},
		{"time out", "timeout"},
		{"bloco", "bloqueio"},
		{"bloquei", "bloqueio"},
		{"pont", "ponto"},
		{"ase", "ace"},
		{"eice", "ace"},
	},
	undo:          []string{"desfazer", "desfaz", "ops", "opa", "cancelar", "cancela", "anular", "voltar", "errei"},
	negative:      []string{"tirar", "tira", "retirar", "remover", "corrigir", "corrige", "volta", "voltar", "menos", "cancelar", "cancela", "anular", "descontar", "desconta"},
	pointTriggers: []string{"ponto", "pontos", "marcou", "marca", "mais um", "fez ponto"},
	timeout:       []string{"timeout", "tempo", "pedido de tempo", "pedir tempo", "tempo técnico"},
	server:        []string{"troca de saque", "mudança de saque", "saque", "sacar", "saca", "sacando", "serviço"},
	swap:          []string{"trocar lados", "trocar de lado", "trocar de lados", "troca de lado", "inverter", "inverter lados", "mudar lados", "mudar de lado", "virar lado", "virar quadra"},
	teamA:         []string{"time a", "equipe a", "lado a", "time da casa", "mandante", "casa"},
	teamB:         []string{"time b", "equipe b", "lado b", "visitante", "visitantes", "time visitante", "time de fora"},
	sideA:         []string{"esquerda", "esquerdo", "lado esquerdo"},
	sideB:         []string{"direita", "direito", "lado direito"},
	genericA:      []string{"ponto a", "ponto pro a", "ponto para a"},
	genericB:      []string{"ponto b", "ponto pro b", "ponto para b"},
	prepositions:  []string{"de", "do", "da", "dos", "das", "para", "pra", "pro", "no", "na", "o", "e", "em", "com", "por"},
	jersey:        []string{"camisa", "camiseta", "número"},
	compounds: []skillPhrase{
		{SkillOpponentError, []string{"saque na rede", "saque fora", "toque na rede", "bola na rede", "na rede", "bola fora", "dois toques", "ponto de erro", "erro do adversário", "erro deles", "invasão de quadra"}},
		{SkillAce, []string{"ponto de saque", "saque direto", "ponto no saque", "ace de saque"}},
		{SkillBlock, []string{"ponto de bloqueio", "bloqueio direto"}},
		{SkillAttack, []string{"ponto de ataque", "mata bola", "matou a bola"}},
	},
	singles: []skillPhrase{
		{SkillAce, []string{"ace", "aces"}},
		{SkillBlock, []string{"bloqueio", "bloqueou", "paredão", "toco", "block"}},
		{SkillAttack, []string{"ataque", "atacou", "ataca", "cortada", "cortou", "largada", "largou", "bomba", "pancada", "cravou"}},
		{SkillOpponentError, []string{"erro", "errou", "falha", "invasão", "condução", "carregada"}},
	},
}

var english = lexicon{
	numbers: map[string]string{
		"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
		"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
		"ten": "10", "eleven": "11", "twelve": "12", "thirteen": "13",
		"fourteen": "14", "fifteen": "15", "sixteen": "16", "seventeen": "17",
		"eighteen": "18", "nineteen": "19", "twenty": "20",
	},
	rewrites: [][2]string{
		{"time out", "timeout"},
		{"sack", "serve"},
		{"serf", "serve"},
		{"ase", "ace"},
		{"blok", "block"},
		{"pint", "point"},
	},
	undo:          []string{"undo", "oops", "cancel", "scratch that", "go back"},
	negative:      []string{"remove", "take away", "take back", "minus", "subtract", "cancel", "correct", "correction"},
	pointTriggers: []string{"point", "points", "score", "scored", "scores", "plus one"},
	timeout:       []string{"timeout", "time-out"},
	server:        []string{"change server", "change serve", "change of serve", "side out", "serve", "serves", "service", "server", "serving"},
	swap:          []string{"swap sides", "switch sides", "change sides", "change court", "swap"},
	teamA:         []string{"team a", "home", "home team", "host", "hosts"},
	teamB:         []string{"team b", "away", "away team", "guest", "guests", "visitor", "visitors"},
	sideA:         []string{"left", "left side"},
	sideB:         []string{"right", "right side"},
	genericA:      []string{"point a", "point for a"},
	genericB:      []string{"point b", "point for b"},
	prepositions:  []string{"for", "the", "to", "of", "from", "by", "on", "in", "at"},
	jersey:        []string{"number", "jersey", "shirt"},
	compounds: []skillPhrase{
		{SkillOpponentError, []string{"serve in the net", "serve out", "in the net", "into the net", "ball out", "out of bounds", "double contact", "double touch", "net touch", "opponent error", "their error"}},
		{SkillAce, []string{"service ace", "ace serve", "ace point", "serve ace"}},
		{SkillBlock, []string{"block point", "stuff block"}},
		{SkillAttack, []string{"attack point", "kill shot", "spike point"}},
	},
	singles: []skillPhrase{
		{SkillAce, []string{"ace", "aces"}},
		{SkillBlock, []string{"block", "blocked", "stuff", "roof"}},
		{SkillAttack, []string{"attack", "kill", "spike", "smash", "tip"}},
		{SkillOpponentError, []string{"error", "fault", "mistake"}},
	},
}

var spanish = lexicon{
	numbers: map[string]string{
		"cero": "0", "uno": "1", "una": "1", "dos": "2", "tres": "3",
		"cuatro": "4", "cinco": "5", "seis": "6", "siete": "7", "ocho": "8",
		"nueve": "9", "diez": "10", "once": "11", "doce": "12", "trece": "13",
		"catorce": "14", "quince": "15", "dieciseis": "16", "diecisiete": "17",
		"dieciocho": "18", "diecinueve": "19", "veinte": "20",
	},
	rewrites: [][2]string{
		{"taimaut", "timeout"},
		{"time out", "timeout"},
		{"bloque", "bloqueo"},
		{"ase", "ace"},
	},
	undo:          []string{"deshacer", "ups", "cancelar", "anular", "borrar"},
	negative:      []string{"quitar", "quita", "restar", "resta", "corregir", "menos", "cancelar", "anular"},
	pointTriggers: []string{"punto", "puntos", "anota", "anotó", "más uno"},
	timeout:       []string{"timeout", "tiempo muerto", "tiempo fuera", "tiempo"},
	server:        []string{"cambio de saque", "saque", "sacar", "saca", "servicio", "servir"},
	swap:          []string{"cambiar lados", "cambiar de lado", "cambio de lado", "cambio de cancha", "intercambiar lados"},
	teamA:         []string{"equipo a", "local", "locales", "casa"},
	teamB:         []string{"equipo b", "visitante", "visitantes"},
	sideA:         []string{"izquierda", "izquierdo", "lado izquierdo"},
	sideB:         []string{"derecha", "derecho", "lado derecho"},
	genericA:      []string{"punto a", "punto para a"},
	genericB:      []string{"punto b", "punto para b"},
	prepositions:  []string{"de", "del", "la", "el", "para", "al", "en", "con", "por", "los", "las"},
	jersey:        []string{"camiseta", "número", "dorsal"},
	compounds: []skillPhrase{
		{SkillOpponentError, []string{"saque en la red", "saque fuera", "en la red", "bola fuera", "doble toque", "error rival", "error del rival", "toque de red", "punto de error"}},
		{SkillAce, []string{"punto de saque", "saque directo", "ace de saque"}},
		{SkillBlock, []string{"punto de bloqueo"}},
		{SkillAttack, []string{"punto de ataque", "remate ganador"}},
	},
	singles: []skillPhrase{
		{SkillAce, []string{"ace"}},
		{SkillBlock, []string{"bloqueo", "bloqueó", "muro", "tapa", "block"}},
		{SkillAttack, []string{"ataque", "remate", "remató", "mate", "finta"}},
		{SkillOpponentError, []string{"error", "falla", "fallo", "invasión"}},
	},
}
