package domain

// ProfileContext is the text the assistant answers from. It is loaded once at
// startup and never mutated afterwards.
type ProfileContext struct {
	Summary  string
	Resume   string
	LinkedIn string
}
