// internal/model/recipient.go
package model

type Recipient struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Email    string `db:"email" json:"email,omitempty"`
	Phone    string `db:"phone" json:"phone,omitempty"`
	ChatID   string `db:"chat_id" json:"chat_id,omitempty"`
	Role     string `db:"role" json:"role"`
	Location string `db:"location" json:"location,omitempty"`
}
