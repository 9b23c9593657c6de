package instagram

// Strict mappings for the loosely typed web API payloads. Only the fields
// the fetcher consumes are declared; everything else is dropped at decode.

const (
	mediaTypePhoto    = 1
	mediaTypeVideo    = 2
	mediaTypeCarousel = 8
)

type imageCandidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type imageVersions struct {
	Candidates []imageCandidate `json:"candidates"`
}

type videoVersion struct {
	URL string `json:"url"`
}

type captionNode struct {
	Text string `json:"text"`
}

type apiItem struct {
	ID            string         `json:"id"`
	PK            int64          `json:"pk"`
	MediaType     int            `json:"media_type"`
	ImageVersions imageVersions  `json:"image_versions2"`
	VideoVersions []videoVersion `json:"video_versions"`
	CarouselMedia []apiItem      `json:"carousel_media"`
	Caption       *captionNode   `json:"caption"`
}

type postResponse struct {
	Items []apiItem `json:"items"`
}

type profileResponse struct {
	Data struct {
		User struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	} `json:"data"`
}

type reel struct {
	ID    string    `json:"id"`
	Items []apiItem `json:"items"`
}

type storyResponse struct {
	Reel *reel `json:"reel"`
}

type highlightResponse struct {
	ReelsMedia []reel `json:"reels_media"`
}

type apiError struct {
	Message       string `json:"message"`
	Status        string `json:"status"`
	RequireLogin  bool   `json:"require_login"`
	CheckpointURL string `json:"checkpoint_url"`
}
