package services

import (
	"context"
	"strings"

	"github.com/bobarin/habitcast/internal/models"
)

// ScriptGenerator turns a narrator persona and a habit into one spoken line.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, narrator *models.Narrator, habit models.Habit) (string, error)
}

// scriptInstruction is appended to every narrator's role prompt.
const scriptInstruction = "When given a Task, you should respond with a sentence that directs someone to do that Task. " +
	"For example: 'User': 'Work', 'Your response': 'It's time to get back to work.', " +
	"but styled in a way that matches your given role."

// buildScriptPrompts returns the system and user messages for a habit.
func buildScriptPrompts(narrator *models.Narrator, habit models.Habit) (string, string) {
	system := strings.TrimSpace(narrator.RolePrompt) + " " + scriptInstruction

	user := "Habit: " + habit.Event
	if narrator.StylePrompt != nil && strings.TrimSpace(*narrator.StylePrompt) != "" {
		user += "\n\nStyle guidance: " + strings.TrimSpace(*narrator.StylePrompt)
	}

	return system, user
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// oneLine flattens a script for log output.
func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " | ")
}
