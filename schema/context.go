package schema

// EnvContext describes where the user's shell runs.
type EnvContext struct {
	OS    string
	Arch  string
	Shell string
	Lang  string
}

// Vars returns the prompt template variables for the context.
func (c EnvContext) Vars() map[string]string {
	return map[string]string{
		"os":    c.OS,
		"arch":  c.Arch,
		"shell": c.Shell,
		"lang":  c.Lang,
	}
}

// Turn is a finished question/answer pair kept as conversation history.
type Turn struct {
	Question string
	Answer   string
	Command  string
}

// ChatRequest is a question submitted to an assistant backend.
type ChatRequest struct {
	ID       string
	Question string
	Env      EnvContext
	History  []Turn
}
