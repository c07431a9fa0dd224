package agent

import (
	"embed"
	"strings"
	"text/template"
)

//go:embed prompts/*.md
var promptFS embed.FS

var (
	systemTemplate  = template.Must(template.ParseFS(promptFS, "prompts/system.md"))
	welcomeTemplate = template.Must(template.ParseFS(promptFS, "prompts/welcome.md"))
)

const defaultSubject = "the candidate"

type promptData struct {
	Subject   string
	Knowledge string
}

// BuildSystemContext renders the fixed instruction block for a conversation:
// role framing naming subject, the knowledge text verbatim, and the answering
// rules. The result is computed once and reused for every exchange.
func BuildSystemContext(knowledgeText, subjectName string) string {
	return render(systemTemplate, promptData{
		Subject:   subjectOrDefault(subjectName),
		Knowledge: knowledgeText,
	})
}

// WelcomeMessage is shown when a conversation has no turns yet.
func WelcomeMessage(subjectName string) string {
	return render(welcomeTemplate, promptData{Subject: subjectOrDefault(subjectName)})
}

// SuggestedQuestions returns starter questions for an empty conversation.
func SuggestedQuestions(subjectName string) []string {
	s := subjectOrDefault(subjectName)
	return []string{
		"What is " + s + "'s current role?",
		"What are " + s + "'s main technical skills?",
		"Can you tell me about " + s + "'s education?",
		"What projects has " + s + " worked on?",
		"What is " + s + "'s professional experience?",
		"Who are " + s + "'s professional references?",
	}
}

func subjectOrDefault(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return defaultSubject
	}
	return name
}

// render executes t. Templates are parsed at init from embedded files and take
// only string fields, so execution cannot fail at runtime.
func render(t *template.Template, data promptData) string {
	var sb strings.Builder
	_ = t.Execute(&sb, data)
	return strings.TrimSpace(sb.String())
}
