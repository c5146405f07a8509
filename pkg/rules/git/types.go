package git

import "time"

// Commit describes the checked out revision.
type Commit struct {
	SHA     string    `json:"sha"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
	Message string    `json:"message"`
}

// PullResult reports what a pull moved HEAD across.
type PullResult struct {
	From  string
	To    string
	Files []string
}

// Changed reports whether the pull moved HEAD.
func (p *PullResult) Changed() bool {
	return p.From != p.To
}
