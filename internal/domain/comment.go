package domain

import "time"

// Comment is a message in a ticket thread.
type Comment struct {
	ID        string
	TicketID  string
	AuthorID  *string
	Body      string
	CreatedAt time.Time
}

// CommentView is a comment with its author resolved.
type CommentView struct {
	Comment
	AuthorName string
	AuthorRole Role
}
