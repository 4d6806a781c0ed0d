package model

// Names of the lists every user gets on first use.
const (
	ListLikes    = "likes"
	ListDislikes = "dislikes"
	ListFavs     = "favs"
)

type MediaList struct {
	ID          string      `gorm:"primaryKey" json:"list_id"`
	UserID      string      `gorm:"index;not null" json:"-"`
	Username    string      `gorm:"index;not null" json:"username"`
	Name        string      `gorm:"not null" json:"name"`
	Description string      `json:"description"`
	IsPublic    bool        `json:"is_public"`
	MediaIDs    StringSlice `json:"media_list"`
	CreatedAt   int64       `gorm:"not null" json:"creation_date"`
}
