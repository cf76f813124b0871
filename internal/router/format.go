package router

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/joescharf/teambot/internal/chat"
	"github.com/joescharf/teambot/internal/models"
	"github.com/joescharf/teambot/internal/store"
)

// MaxMessageLen is the longest text a single chat message may carry.
const MaxMessageLen = 4096

// leaderboardSize is how many users /karma ranks.
const leaderboardSize = 5

const (
	msgKarma     = "🏆 Your karma: %d"
	msgNoTasks   = "No tasks are assigned to you."
	msgNoIdeas   = "No ideas have been submitted yet."
	msgAdminOnly = "This command is only available to admins."
	msgFailure   = "Something went wrong. Please try again later."
)

func welcomeText(in chat.Inbound, admin bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s! 👋\nWelcome to the team bot.\n\n", in.FirstName)
	b.WriteString("📝 /idea - submit a new idea\n")
	b.WriteString("✅ /task - create a new task\n")
	b.WriteString("📋 /mytasks - tasks assigned to you\n")
	b.WriteString("💡 /ideas - all ideas\n")
	b.WriteString("🏆 /karma - your karma\n")
	b.WriteString("❌ /cancel - abort the current dialog")
	if admin {
		b.WriteString("\n📊 /stats - team statistics")
	}
	return b.String()
}

func formatKarma(karma int, top []*models.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, msgKarma, karma)
	if len(top) == 0 {
		return b.String()
	}
	b.WriteString("\n\nTop members:")
	for i, u := range top {
		fmt.Fprintf(&b, "\n%d. %s - %d", i+1, u.DisplayName, u.Karma)
	}
	return b.String()
}

func formatTasks(tasks []*models.Task) string {
	if len(tasks) == 0 {
		return msgNoTasks
	}
	var b strings.Builder
	b.WriteString("📋 Your tasks:\n\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "• %s - status: %s", t.Title, t.Status)
		if t.DueDate != "" {
			fmt.Fprintf(&b, " - due: %s", t.DueDate)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatIdeas(ideas []*models.Idea) string {
	if len(ideas) == 0 {
		return msgNoIdeas
	}
	var b strings.Builder
	b.WriteString("💡 Submitted ideas:\n\n")
	for _, i := range ideas {
		fmt.Fprintf(&b, "• %s - by: %s - priority: %s\n", i.Title, i.AuthorName, i.Priority.Label())
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStats(st *store.Stats) string {
	return fmt.Sprintf("📊 Users: %d\nIdeas: %d\nTasks: %d\nTotal karma: %d",
		st.Users, st.Ideas, st.Tasks, st.TotalKarma)
}

// splitMessage cuts text into parts of at most limit runes, preferring to
// break after a newline.
func splitMessage(text string, limit int) []string {
	var parts []string
	for utf8.RuneCountInString(text) > limit {
		// Byte offset of the rune at position limit.
		cut, n := 0, 0
		for i := range text {
			if n == limit {
				cut = i
				break
			}
			n++
		}
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > 0 {
			cut = nl + 1
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
