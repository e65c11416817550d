package session

// Persona is the teaching style used once a level is locked.
type Persona int

const (
	PersonaCoach Persona = iota
	PersonaProfessor
	PersonaColleague
)

// personaBands maps inclusive level ranges to personas.
var personaBands = []struct {
	lo, hi  int
	persona Persona
}{
	{1, 2, PersonaCoach},
	{3, 4, PersonaProfessor},
	{5, 5, PersonaColleague},
}

// PersonaForLevel returns the persona for a level. Out-of-range levels are
// clamped first.
func PersonaForLevel(level int) Persona {
	level = clampLevel(level)
	for _, b := range personaBands {
		if level >= b.lo && level <= b.hi {
			return b.persona
		}
	}
	return PersonaProfessor
}

func (p Persona) String() string {
	switch p {
	case PersonaCoach:
		return "Coach"
	case PersonaProfessor:
		return "Professor"
	case PersonaColleague:
		return "Colleague"
	default:
		return "Unknown"
	}
}
