package domain

// QAEntry is a static question/answer pair. Entries are managed from
// the dashboard; the engine only ever reads them.
type QAEntry struct {
	ID       int64  `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Warning  string `json:"warning,omitempty"` // shown alongside the answer when set
	Active   bool   `json:"active"`
}
