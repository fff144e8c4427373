package model

import "time"

// Comment is feedback left on a project, with an optional 1-5 rating.
type Comment struct {
	ID        uint64    `json:"id"`
	ProjectID uint64    `json:"project_id"`
	AuthorID  uint64    `json:"author_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Rating    *int      `json:"rating,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
