package testutil

// FixedSession returns the same session ID every time, so scenario runs
// produce byte-identical apply logs.
//
// Stateless and safe for concurrent use.
type FixedSession struct {
	id string
}

// NewFixedSession creates a generator for id.
// An empty id becomes "test-session".
func NewFixedSession(id string) FixedSession {
	if id == "" {
		id = "test-session"
	}
	return FixedSession{id: id}
}

// Generate returns the fixed ID.
func (g FixedSession) Generate() string {
	return g.id
}
