package model

// User is the minimal identity the media store needs. Accounts are issued
// elsewhere; anonymous users are created on demand by web uploads.
type User struct {
	ID        string `gorm:"primaryKey" json:"id"`
	Username  string `gorm:"uniqueIndex;not null" json:"username"`
	IsAnon    bool   `gorm:"default:false" json:"is_anon"`
	CreatedAt int64  `gorm:"not null" json:"created_at"`

	Stats Stats `gorm:"foreignKey:UserID" json:"-"`
}
