// Package model defines database models
package model

// Media is the metadata record of one stored image. FilePath is the
// content address ({username}/{md5}{EXT}) relative to the media root.
type Media struct {
	ID          string      `gorm:"primaryKey" json:"media_id"`
	UserID      string      `gorm:"index;not null" json:"-"`
	Username    string      `gorm:"index;not null" json:"username"`
	FilePath    string      `gorm:"index;not null" json:"file_path"`
	FileName    string      `json:"file_name"`
	FileSize    int64       `json:"file_size"`
	FileType    string      `json:"file_type"`
	FileFormat  string      `json:"file_format"`
	MimeType    string      `json:"mime_type"`
	ChecksumMD5 string      `gorm:"index" json:"checksum_md5"`
	IsPublic    bool        `json:"is_public"`
	IsAnon      bool        `json:"is_anon"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	SourceURL   string      `json:"source_url"`
	Tags        StringSlice `json:"tags"`
	CreatedAt   int64       `gorm:"not null" json:"creation_date"` // unix seconds
}
