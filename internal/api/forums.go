package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/agora/internal/model"
)

type CreateForumRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type CreatePostRequest struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

type UpdatePostRequest struct {
	Content string `json:"content"`
}

type forumsResponse struct {
	Forums []model.Forum `json:"forums"`
}

type forumResponse struct {
	Forum model.Forum `json:"forum"`
}

type postsResponse struct {
	Posts []model.Post `json:"posts"`
}

type postResponse struct {
	Post model.Post `json:"post"`
}

func (c *Client) ListForums(ctx context.Context, p Page) ([]model.Forum, error) {
	var out forumsResponse
	if err := c.do(ctx, "ListForums", http.MethodGet, "/api/forums", p.values(), nil, &out); err != nil {
		return nil, err
	}
	return out.Forums, nil
}

func (c *Client) SearchForums(ctx context.Context, query string, p Page) ([]model.Forum, error) {
	q := p.values()
	q.Set("q", query)
	var out forumsResponse
	if err := c.do(ctx, "SearchForums", http.MethodGet, "/api/forums/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Forums, nil
}

func (c *Client) CreateForum(ctx context.Context, req CreateForumRequest) (*model.Forum, error) {
	var out forumResponse
	if err := c.do(ctx, "CreateForum", http.MethodPost, "/api/forums/create", nil, req, &out); err != nil {
		return nil, err
	}
	return &out.Forum, nil
}

func (c *Client) ListPosts(ctx context.Context, forumID int64, p Page) ([]model.Post, error) {
	var out postsResponse
	path := fmt.Sprintf("/api/forums/%d/posts", forumID)
	if err := c.do(ctx, "ListPosts", http.MethodGet, path, p.values(), nil, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

// ListComments возвращает ответы на пост parentID.
func (c *Client) ListComments(ctx context.Context, forumID, parentID int64) ([]model.Post, error) {
	var out postsResponse
	path := fmt.Sprintf("/api/forums/%d/posts", forumID)
	q := url.Values{"parent_id": {fmt.Sprint(parentID)}}
	if err := c.do(ctx, "ListComments", http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

func (c *Client) SearchPosts(ctx context.Context, forumID int64, query string, p Page) ([]model.Post, error) {
	q := p.values()
	q.Set("q", query)
	var out postsResponse
	path := fmt.Sprintf("/api/forums/%d/posts/search", forumID)
	if err := c.do(ctx, "SearchPosts", http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

func (c *Client) CreatePost(ctx context.Context, forumID int64, req CreatePostRequest) (*model.Post, error) {
	var out postResponse
	path := fmt.Sprintf("/api/forums/%d/posts", forumID)
	if err := c.do(ctx, "CreatePost", http.MethodPost, path, nil, req, &out); err != nil {
		return nil, err
	}
	return &out.Post, nil
}

func (c *Client) UpdatePost(ctx context.Context, forumID, postID int64, req UpdatePostRequest) (*model.Post, error) {
	var out postResponse
	path := fmt.Sprintf("/api/forums/%d/posts/%d", forumID, postID)
	if err := c.do(ctx, "UpdatePost", http.MethodPut, path, nil, req, &out); err != nil {
		return nil, err
	}
	return &out.Post, nil
}

func (c *Client) DeletePost(ctx context.Context, forumID, postID int64) error {
	path := fmt.Sprintf("/api/forums/%d/posts/%d", forumID, postID)
	return c.do(ctx, "DeletePost", http.MethodDelete, path, nil, nil, nil)
}
