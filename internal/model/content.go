package model

// UserContent holds one named section of free-form key/value content
type UserContent struct {
	ID      uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID  string    `gorm:"uniqueIndex:idx_user_section;not null" json:"-"`
	Section string    `gorm:"uniqueIndex:idx_user_section;not null" json:"section"`
	Values  StringMap `json:"values"`
}
