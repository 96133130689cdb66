package unsplash

import (
	"strings"
	"time"

	"github.com/mmcdole/pixora/internal/domain"
)

// MapPhotos converts catalog records to domain photos, skipping records without an id
func MapPhotos(dtos []PhotoDTO) []domain.Photo {
	photos := make([]domain.Photo, 0, len(dtos))
	for _, d := range dtos {
		if d.ID == "" {
			continue
		}
		photos = append(photos, MapPhoto(d))
	}
	return photos
}

// MapPhoto converts a single catalog record
func MapPhoto(d PhotoDTO) domain.Photo {
	p := domain.Photo{
		ID:               d.ID,
		Description:      description(d),
		Width:            d.Width,
		Height:           d.Height,
		Color:            d.Color,
		Likes:            d.Likes,
		ThumbURL:         d.URLs.Thumb,
		SmallURL:         d.URLs.Small,
		RegularURL:       d.URLs.Regular,
		FullURL:          d.URLs.Full,
		AuthorName:       d.User.Name,
		AuthorUsername:   d.User.Username,
		DownloadLocation: d.Links.DownloadLocation,
		PageURL:          d.Links.HTML,
	}
	if d.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, d.CreatedAt); err == nil {
			p.CreatedAt = t
		}
	}
	if p.AuthorName == "" {
		p.AuthorName = d.User.Username
	}
	return p
}

// description prefers the author's description over the generated alt text
func description(d PhotoDTO) string {
	for _, s := range []*string{d.Description, d.AltDescription} {
		if s != nil {
			if v := strings.TrimSpace(*s); v != "" {
				return v
			}
		}
	}
	return ""
}
