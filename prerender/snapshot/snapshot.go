// Package snapshot defines the records emitted by prerender runs. These are
// the public contract for sinks and any consumer of run output.
package snapshot

// Result is the outcome of one capture session: the rewritten document for
// one URL of one site.
type Result struct {
	ID         string         `json:"id"` // UUIDv7
	RunID      string         `json:"run_id,omitempty"`
	Site       string         `json:"site"`
	URL        string         `json:"url"`
	Output     string         `json:"output,omitempty"` // file written, "" when returned only
	Screenshot string         `json:"screenshot,omitempty"`
	HTML       []byte         `json:"html,omitempty"`
	HTMLHash   string         `json:"html_hash"` // SHA-256 hex of HTML
	Resources  map[string]int `json:"resources,omitempty"` // captured count per kind
	Timestamp  int64          `json:"timestamp"`           // epoch milliseconds
	Error      string         `json:"error,omitempty"`     // set on failed URLs
}

// Failed reports whether the session failed.
func (r *Result) Failed() bool { return r.Error != "" }

// Summary closes a run.
type Summary struct {
	RunID      string   `json:"run_id"`
	Sites      int      `json:"sites"`
	Completed  int      `json:"completed"`
	Failed     int      `json:"failed"`
	FailedURLs []string `json:"failed_urls,omitempty"`
	DurationMs int64    `json:"duration_ms"`
	Timestamp  int64    `json:"timestamp"`
}
