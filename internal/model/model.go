package model

import "time"

// Choice is a user's answer to a question.
type Choice string

const (
	ChoicePress     Choice = "PRESS"
	ChoiceDontPress Choice = "DONT_PRESS"
)

func (c Choice) Valid() bool {
	return c == ChoicePress || c == ChoiceDontPress
}

// SortOrder selects the ordering of a question listing.
type SortOrder string

const (
	SortNewest    SortOrder = "newest"
	SortOldest    SortOrder = "oldest"
	SortMostVoted SortOrder = "most_voted"
)

func (s SortOrder) Valid() bool {
	switch s {
	case SortNewest, SortOldest, SortMostVoted:
		return true
	}
	return false
}

type Question struct {
	ID              int64     `json:"id"`
	PositiveOutcome string    `json:"positive_outcome"`
	NegativeOutcome string    `json:"negative_outcome"`
	AuthorID        int64     `json:"author_id"`
	AuthorName      string    `json:"author_name,omitempty"`
	VoteCount       int       `json:"vote_count"`
	CommentCount    int       `json:"comment_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Vote struct {
	ID         int64     `json:"id"`
	QuestionID int64     `json:"question_id"`
	UserID     int64     `json:"user_id"`
	Choice     Choice    `json:"choice"`
	CreatedAt  time.Time `json:"created_at"`
}

type Comment struct {
	ID         int64     `json:"id"`
	QuestionID int64     `json:"question_id"`
	UserID     int64     `json:"user_id"`
	AuthorName string    `json:"author_name,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Public strips fields that only the owner may see.
func (u User) Public() User {
	u.Email = ""
	u.PasswordHash = ""
	return u
}

type VoteStatus struct {
	PositiveVotes      int     `json:"positive_votes"`
	NegativeVotes      int     `json:"negative_votes"`
	TotalVotes         int     `json:"total_votes"`
	PositivePercentage float64 `json:"positive_percentage"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination derives the page count from total and limit.
func NewPagination(page, limit, total int) Pagination {
	p := Pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.TotalPages = (total + limit - 1) / limit
	}
	return p
}

type QuestionPage struct {
	Items      []Question `json:"items"`
	Pagination Pagination `json:"pagination"`
}

type CommentPage struct {
	Items      []Comment  `json:"items"`
	Pagination Pagination `json:"pagination"`
}

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}
