package models

import (
	"net/url"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// Category groups forum posts. Read-mostly reference data.
type Category struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:60;uniqueIndex;not null" json:"name"`
	Description string `gorm:"size:255" json:"description,omitempty"`
	Color       string `gorm:"size:16;not null;default:'#64748b'" json:"color"`
	Active      bool   `gorm:"not null;default:true" json:"active"`
	SortOrder   int    `gorm:"not null;default:0" json:"sort_order"`
	// PostCount is not persisted; computed at query time
	PostCount int       `gorm:"->;-:migration" json:"post_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Post is a forum thread. ModelName associates it with a creator model;
// posts without one belong to the general forum.
type Post struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Title        string         `gorm:"size:300;not null" json:"title"`
	Body         string         `gorm:"type:text;not null" json:"body"`
	UserID       uint           `gorm:"not null;index" json:"author_id"`
	User         User           `gorm:"foreignKey:UserID" json:"-"`
	Author       *AuthorSummary `gorm:"-" json:"author,omitempty"`
	CategoryID   *uint          `gorm:"index" json:"category_id,omitempty"`
	Category     *Category      `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	ModelName    *string        `gorm:"size:100;index" json:"model_name,omitempty"`
	Pinned       bool           `gorm:"not null;default:false" json:"pinned"`
	Locked       bool           `gorm:"not null;default:false" json:"locked"`
	Upvotes      int            `gorm:"not null;default:0" json:"upvotes"`
	Downvotes    int            `gorm:"not null;default:0" json:"downvotes"`
	CommentCount int            `gorm:"not null;default:0" json:"comment_count"`
	// UserVote is the requesting user's vote: 1, -1 or 0 (computed)
	UserVote  int            `gorm:"-" json:"user_vote"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Comments  []Comment      `gorm:"foreignKey:PostID" json:"comments,omitempty"`
}

// Score is the net vote count.
func (p *Post) Score() int {
	return p.Upvotes - p.Downvotes
}

// Comment belongs to a post; ParentID threads replies.
type Comment struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Body      string         `gorm:"type:text;not null" json:"body"`
	UserID    uint           `gorm:"not null;index" json:"author_id"`
	User      User           `gorm:"foreignKey:UserID" json:"-"`
	Author    *AuthorSummary `gorm:"-" json:"author,omitempty"`
	PostID    uint           `gorm:"not null;index" json:"post_id"`
	ParentID  *uint          `gorm:"index" json:"parent_id,omitempty"`
	Upvotes   int            `gorm:"not null;default:0" json:"upvotes"`
	Downvotes int            `gorm:"not null;default:0" json:"downvotes"`
	UserVote  int            `gorm:"-" json:"user_vote"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Vote target kinds.
const (
	VoteTargetPost    = "post"
	VoteTargetComment = "comment"
)

// Vote request directions.
const (
	VoteTypeUp   = "upvote"
	VoteTypeDown = "downvote"
)

// Vote records one user's direction on one post or comment. A missing row
// means no vote; the unique index keeps at most one row per user and item.
type Vote struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_votes_user_target" json:"user_id"`
	TargetType string    `gorm:"size:16;not null;uniqueIndex:idx_votes_user_target;index:idx_votes_target" json:"target_type"`
	TargetID   uint      `gorm:"not null;uniqueIndex:idx_votes_user_target;index:idx_votes_target" json:"target_id"`
	Value      int       `gorm:"not null" json:"value"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// VoteValue maps a request direction to the stored value.
func VoteValue(voteType string) (int, bool) {
	switch voteType {
	case VoteTypeUp:
		return 1, true
	case VoteTypeDown:
		return -1, true
	}
	return 0, false
}

// VoteResult is returned by POST /api/forum/votes. Vote is the caller's vote
// after the toggle: 1, -1 or 0 when it was withdrawn.
type VoteResult struct {
	TargetType string `json:"target_type"`
	TargetID   uint   `json:"target_id"`
	Vote       int    `json:"vote"`
	Upvotes    int    `json:"upvotes"`
	Downvotes  int    `json:"downvotes"`
}

// Post list sort keys.
const (
	SortHot = "hot"
	SortNew = "new"
	SortTop = "top"
)

// PostFilters selects a page of posts.
type PostFilters struct {
	CategoryID  *uint  `json:"category_id,omitempty"`
	ModelName   string `json:"model,omitempty"`
	GeneralOnly bool   `json:"general_only,omitempty"`
	Sort        string `json:"sort,omitempty"`
	Page        int    `json:"page,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
	Search      string `json:"search,omitempty"`
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize fills defaults and clamps paging.
func (f PostFilters) Normalize() PostFilters {
	switch f.Sort {
	case SortHot, SortNew, SortTop:
	default:
		f.Sort = SortHot
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.GeneralOnly {
		f.ModelName = ""
	}
	return f
}

// Offset is the row offset of the first post on the page.
func (f PostFilters) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Values encodes the filters as query parameters. Zero values are omitted so
// equal filter sets always encode identically.
func (f PostFilters) Values() url.Values {
	v := url.Values{}
	if f.CategoryID != nil {
		v.Set("category_id", strconv.FormatUint(uint64(*f.CategoryID), 10))
	}
	if f.ModelName != "" {
		v.Set("model", f.ModelName)
	}
	if f.GeneralOnly {
		v.Set("general_only", "true")
	}
	if f.Sort != "" {
		v.Set("sort", f.Sort)
	}
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(f.PageSize))
	}
	if f.Search != "" {
		v.Set("search", f.Search)
	}
	return v
}

// PostPage is one page of a post listing.
type PostPage struct {
	Posts    []Post `json:"posts"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int64  `json:"total"`
	HasMore  bool   `json:"has_more"`
}

// ForumStats summarizes forum activity.
type ForumStats struct {
	Posts       int64 `json:"posts"`
	Comments    int64 `json:"comments"`
	Votes       int64 `json:"votes"`
	Members     int64 `json:"members"`
	ActiveToday int64 `json:"active_today"`
}
