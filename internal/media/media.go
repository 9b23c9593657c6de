package media

import "strings"

// RefKind classifies a resolved Instagram link.
type RefKind string

const (
	// RefPost covers /p/, /reel/, and /tv/ links. Whether the post is a
	// single item or a carousel is only known after the metadata lookup.
	RefPost RefKind = "post"
	// RefStory is a story link; PrimaryID is the owning username and
	// SecondaryID, when present, the story item identifier.
	RefStory RefKind = "story"
	// RefHighlight is a highlight reel; PrimaryID is the highlight identifier.
	RefHighlight RefKind = "highlight"
)

// PostRef identifies one piece of Instagram content. It is produced by the
// link resolver and consumed once per job.
type PostRef struct {
	Kind        RefKind
	PrimaryID   string
	SecondaryID string
}

// Kind distinguishes photo and video assets.
type Kind string

const (
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)

// Delivery describes how an asset is ultimately transmitted to Telegram.
type Delivery string

const (
	// DeliveryInline streams the asset as a native photo or video.
	DeliveryInline Delivery = "inline"
	// DeliveryDocument sends the asset as a generic file under the larger
	// document ceiling.
	DeliveryDocument Delivery = "document"
	// DeliveryRejected excludes the asset from transmission entirely.
	DeliveryRejected Delivery = "rejected"
)

// Asset is one downloaded photo or video belonging to a post. Assets are
// exclusively owned by the job's scratch directory and never shared across
// jobs.
type Asset struct {
	Ordinal    int
	Kind       Kind
	SourceURL  string
	LocalPath  string
	ByteSize   int64
	Delivery   Delivery
	Compressed bool
}

// Ext returns the file extension conventionally used for the asset kind.
func (k Kind) Ext() string {
	if k == KindVideo {
		return ".mp4"
	}
	return ".jpg"
}

// Renumber reassigns dense ordinals in slice order. Used after failed items
// have been excluded from a carousel so downstream consumers can rely on
// ordinals being unique and gap-free.
func Renumber(assets []Asset) {
	for i := range assets {
		assets[i].Ordinal = i
	}
}

// CountKind returns how many assets have the given kind.
func CountKind(assets []Asset, kind Kind) int {
	n := 0
	for _, a := range assets {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// ParseRefKind converts a string into a known RefKind.
func ParseRefKind(value string) (RefKind, bool) {
	normalized := RefKind(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case RefPost, RefStory, RefHighlight:
		return normalized, true
	}
	return "", false
}
