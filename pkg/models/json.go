package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Like records that a user liked a card. At most one per user.
type Like struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

// Reaction is an emoji reaction on a card. At most one per user.
type Reaction struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Emoji     string `json:"emoji"`
	Timestamp int64  `json:"timestamp"`
}

// JSONStringArray is a custom type for handling JSON string arrays in SQL text columns.
type JSONStringArray []string

// Scan implements sql.Scanner for JSONStringArray.
func (j *JSONStringArray) Scan(src interface{}) error {
	*j = nil
	return scanJSON(src, j, "JSONStringArray")
}

// Value implements driver.Valuer for JSONStringArray.
// Empty arrays are stored as "[]" so membership lists never read back as NULL.
func (j JSONStringArray) Value() (driver.Value, error) {
	if j == nil {
		return "[]", nil
	}
	b, err := json.Marshal(j)
	return string(b), err
}

// JSONLikes is the JSON column type for a card's likes.
type JSONLikes []Like

// Scan implements sql.Scanner for JSONLikes.
func (j *JSONLikes) Scan(src interface{}) error {
	*j = nil
	return scanJSON(src, j, "JSONLikes")
}

// Value implements driver.Valuer for JSONLikes.
func (j JSONLikes) Value() (driver.Value, error) {
	if j == nil {
		return "[]", nil
	}
	b, err := json.Marshal(j)
	return string(b), err
}

// JSONReactions is the JSON column type for a card's reactions.
type JSONReactions []Reaction

// Scan implements sql.Scanner for JSONReactions.
func (j *JSONReactions) Scan(src interface{}) error {
	*j = nil
	return scanJSON(src, j, "JSONReactions")
}

// Value implements driver.Valuer for JSONReactions.
func (j JSONReactions) Value() (driver.Value, error) {
	if j == nil {
		return "[]", nil
	}
	b, err := json.Marshal(j)
	return string(b), err
}

func scanJSON(src interface{}, dst interface{}, name string) error {
	if src == nil {
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("%s: unsupported type %T", name, src)
	}

	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, dst)
}
