package unsplash

// PhotoDTO is a photo record as returned by /photos and /search/photos
type PhotoDTO struct {
	ID             string  `json:"id"`
	CreatedAt      string  `json:"created_at,omitempty"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Color          string  `json:"color,omitempty"`
	Likes          int     `json:"likes"`
	Description    *string `json:"description"`
	AltDescription *string `json:"alt_description"`
	URLs           URLs    `json:"urls"`
	Links          Links   `json:"links"`
	User           UserDTO `json:"user"`
}

// URLs holds the hosted image variants
type URLs struct {
	Raw     string `json:"raw,omitempty"`
	Full    string `json:"full,omitempty"`
	Regular string `json:"regular,omitempty"`
	Small   string `json:"small,omitempty"`
	Thumb   string `json:"thumb,omitempty"`
}

// Links holds the photo's related endpoints
type Links struct {
	Self             string `json:"self,omitempty"`
	HTML             string `json:"html,omitempty"`
	Download         string `json:"download,omitempty"`
	DownloadLocation string `json:"download_location,omitempty"`
}

// UserDTO is the photo's creator
type UserDTO struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// SearchResponse wraps /search/photos results
type SearchResponse struct {
	Total      int        `json:"total"`
	TotalPages int        `json:"total_pages"`
	Results    []PhotoDTO `json:"results"`
}

// DownloadResponse is the body of a download_location request
type DownloadResponse struct {
	URL string `json:"url"`
}

// ErrorResponse is the catalog's error body
type ErrorResponse struct {
	Errors []string `json:"errors"`
}
