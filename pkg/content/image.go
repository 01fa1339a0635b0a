package content

// Image is the image tool payload.
type Image struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	OriginalURL string `json:"originalUrl,omitempty"`
}

// NewImage returns an image payload for the given URL.
func NewImage(url string) *Image {
	return &Image{Type: TypeImage, URL: url}
}

// ContentType implements Content.
func (i *Image) ContentType() string { return TypeImage }

// SetURL replaces the display URL, remembering the original source the
// first time a resized copy is substituted.
func (i *Image) SetURL(url string) {
	if i.OriginalURL == "" && i.URL != "" && i.URL != url {
		i.OriginalURL = i.URL
	}
	i.URL = url
}
