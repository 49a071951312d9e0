package validation

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxTitleLen   = 300
	MaxBodyLen    = 50000
	MaxCommentLen = 10000
)

// ValidatePost checks a post draft before it is sent or stored.
func ValidatePost(title, body string) error {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" {
		return errors.New("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return errors.New("title too long (max 300 characters)")
	}
	if body == "" {
		return errors.New("content is required")
	}
	if utf8.RuneCountInString(body) > MaxBodyLen {
		return errors.New("content too long (max 50000 characters)")
	}
	return nil
}

// ValidateComment checks a comment draft.
func ValidateComment(body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return errors.New("comment is required")
	}
	if utf8.RuneCountInString(body) > MaxCommentLen {
		return errors.New("comment too long (max 10000 characters)")
	}
	return nil
}
