package rag

import (
	"fmt"
	"strings"

	"scholar/scholar/services/llm"
	"scholar/scholar/sources/db/models"
)

const systemPrompt = `You are a research assistant. Answer the user's question using only the numbered excerpts from the selected papers. Cite excerpts as [n]. If the excerpts do not contain the answer, say so.`

// maxHistory bounds how many earlier turns are replayed to the model.
const maxHistory = 6

// BuildMessages assembles the grounded chat request: system prompt with the
// retrieved excerpts, the tail of the conversation, then the question.
func BuildMessages(question string, hits []Hit, titles map[int]string, history []models.ChatMessage) []llm.Message {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nExcerpts:\n")
	for i, h := range hits {
		fmt.Fprintf(&sb, "[%d] (%s, part %d)\n%s\n\n", i+1, titles[h.Chunk.PaperID], h.Chunk.Ordinal+1, h.Chunk.Content)
	}

	msgs := []llm.Message{{Role: "system", Content: sb.String()}}
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(msgs, llm.Message{Role: models.RoleUser, Content: question})
}

// Sources converts hits into the citations stored with an answer.
func Sources(hits []Hit, titles map[int]string) []models.Source {
	out := make([]models.Source, 0, len(hits))
	for _, h := range hits {
		out = append(out, models.Source{
			PaperID: h.Chunk.PaperID,
			Title:   titles[h.Chunk.PaperID],
			Ordinal: h.Chunk.Ordinal,
			Score:   h.Score,
		})
	}
	return out
}

// Extractive answers without a language model by quoting the best excerpts.
func Extractive(hits []Hit, titles map[int]string) string {
	if len(hits) == 0 {
		return "None of the selected papers are indexed yet, so there is nothing to answer from."
	}
	var sb strings.Builder
	sb.WriteString("Most relevant passages from the selected papers:\n")
	for i, h := range hits {
		if i == 3 {
			break
		}
		fmt.Fprintf(&sb, "\n[%d] %s: %s\n", i+1, titles[h.Chunk.PaperID], excerpt(h.Chunk.Content, 400))
	}
	return sb.String()
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
