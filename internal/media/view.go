package media

import "github.com/sergioamr/img-api/internal/model"

type Info struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// View is the public representation of a media record. The file fields
// are only filled in for the owner.
type View struct {
	MediaID      string   `json:"media_id"`
	Username     string   `json:"username"`
	IsPublic     bool     `json:"is_public"`
	FileSize     int64    `json:"file_size"`
	FileType     string   `json:"file_type"`
	FileFormat   string   `json:"file_format"`
	CreationDate int64    `json:"creation_date"`
	Info         Info     `json:"info"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	SourceURL    string   `json:"source_url"`
	Tags         []string `json:"tags"`

	FileName    string `json:"file_name,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	ChecksumMD5 string `json:"checksum_md5,omitempty"`
}

// IsOwner reports whether requester owns rec.
func IsOwner(rec *model.Media, requester *Owner) bool {
	return requester != nil && requester.ID != "" && requester.ID == rec.UserID
}

// Serialize renders rec for requester.
func Serialize(rec *model.Media, requester *Owner) View {
	tags := []string(rec.Tags)
	if tags == nil {
		tags = []string{}
	}

	v := View{
		MediaID:      rec.ID,
		Username:     rec.Username,
		IsPublic:     rec.IsPublic,
		FileSize:     rec.FileSize,
		FileType:     rec.FileType,
		FileFormat:   rec.FileFormat,
		CreationDate: rec.CreatedAt,
		Info:         Info{Width: rec.Width, Height: rec.Height},
		Title:        rec.Title,
		Description:  rec.Description,
		SourceURL:    rec.SourceURL,
		Tags:         tags,
	}

	if IsOwner(rec, requester) {
		v.FileName = rec.FileName
		v.FilePath = rec.FilePath
		v.ChecksumMD5 = rec.ChecksumMD5
	}

	return v
}

func SerializeAll(recs []model.Media, requester *Owner) []View {
	out := make([]View, 0, len(recs))
	for i := range recs {
		out = append(out, Serialize(&recs[i], requester))
	}

	return out
}
