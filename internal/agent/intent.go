package agent

import "strings"

// Intent is the closed set of routing outcomes for a chat query.
type Intent int

const (
	// IntentContent is the default: answer from retrieved document content.
	IntentContent Intent = iota
	// IntentNonBook refuses queries unrelated to the book catalog.
	IntentNonBook
	// IntentMetadata answers from catalog metadata (genre/author listings).
	IntentMetadata
)

const (
	labelNonBook  = "NON_BOOK"
	labelMetadata = "METADATA"
	labelContent  = "CONTENT"
)

// parseIntent maps the classifier's raw output onto an Intent. Anything that
// is not recognizably NON_BOOK or METADATA routes to CONTENT, the branch that
// grounds its answer in retrieved text and admits uncertainty.
func parseIntent(raw string) Intent {
	label := strings.ToUpper(strings.TrimSpace(raw))
	// Models occasionally decorate the label; look for it anywhere in the
	// first line.
	if i := strings.IndexByte(label, '\n'); i >= 0 {
		label = label[:i]
	}
	switch {
	case strings.Contains(label, labelNonBook):
		return IntentNonBook
	case strings.Contains(label, labelMetadata):
		return IntentMetadata
	default:
		return IntentContent
	}
}
