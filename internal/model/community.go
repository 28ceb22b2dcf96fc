package model

import "time"

type Forum struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	PostCount   int       `json:"post_count,omitempty"`
}

type Post struct {
	ID        int64     `json:"id"`
	ForumID   int64     `json:"forum_id"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
}

type Chatroom struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UserCount   int       `json:"user_count,omitempty"`
}
