package agent

import (
	"fmt"
	"strings"
)

// Turn is one prior exchange in the conversation.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

const refusalMessage = "I can only help with questions about books in this catalog. " +
	"Try asking about a book's content, or for books by a genre or author."

const apologyMessage = "Sorry, I wasn't able to answer that right now. Please try again."

const catalogSource = "Book catalog"

func classifyPrompt(query string, history []Turn) string {
	return fmt.Sprintf(`Classify the user's query into exactly one category.

Categories:
- NON_BOOK: the query is not about books, the catalog, or their contents
- METADATA: the query asks to list or find books by genre, author, or other catalog fields
- CONTENT: the query asks about the contents, plot, or details of one or more books

Recent conversation:
%s
Query: %s

Respond with only the category label.`, historyText(history), query)
}

func filterPrompt(query string) string {
	return fmt.Sprintf(`Extract search criteria from this catalog query as JSON with keys
"genre" (string or ""), "author" (string or ""), and "limit" (number, default 5).
Respond with only the JSON object.

Query: %s`, query)
}

func titlePrompt(query string) string {
	return fmt.Sprintf(`If the query explicitly mentions a book title, respond with only that title.
Otherwise respond with exactly None.

Query: %s`, query)
}

func answerPrompt(query, contextText string, history []Turn) string {
	return fmt.Sprintf(`Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.

Context:
%s

Recent conversation:
%s
Question: %s
Answer:`, contextText, historyText(history), query)
}

// historyText renders the last two turns, oldest first.
func historyText(history []Turn) string {
	if len(history) > 2 {
		history = history[len(history)-2:]
	}
	var b strings.Builder
	for _, t := range history {
		role := "User"
		if strings.EqualFold(t.Role, "assistant") {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, t.Content)
	}
	if b.Len() == 0 {
		return "(none)\n"
	}
	return b.String()
}
