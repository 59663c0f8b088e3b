package listing

// NoPrice is the display price of a lot whose price could not be found.
const NoPrice = "no price"

// Listing is a single catalogue lot. Two listings are the same lot when their Url is equal,
// every other field is a snapshot of how the lot looked when it was scraped.
type Listing struct {
	Url         string
	Title       string
	Price       string
	ImageUrl    string
	GalleryUrls []string
	// DescriptionTable maps the label column of the lot's description table to its value column.
	DescriptionTable map[string]string
	DescriptionText  string
}

// Key is the identity of the listing.
func (l Listing) Key() string {
	return l.Url
}

// HasPrice reports whether the lot carries a real price.
func (l Listing) HasPrice() bool {
	return l.Price != "" && l.Price != NoPrice
}

// Images returns the gallery, or the thumbnail alone when the gallery is empty.
func (l Listing) Images() []string {
	if len(l.GalleryUrls) > 0 {
		return l.GalleryUrls
	}
	if l.ImageUrl != "" {
		return []string{l.ImageUrl}
	}
	return nil
}

// Set holds the identity keys of listings, it is the baseline a scrape is diffed against.
type Set map[string]struct{}

func NewSet(listings ...Listing) Set {
	set := make(Set, len(listings))
	for _, l := range listings {
		set.Add(l)
	}
	return set
}

func (s Set) Add(l Listing) {
	s[l.Key()] = struct{}{}
}

func (s Set) Has(l Listing) bool {
	_, ok := s[l.Key()]
	return ok
}

// Missing returns the listings that are not in the set, in their original order.
func (s Set) Missing(listings []Listing) []Listing {
	var out []Listing
	for _, l := range listings {
		if !s.Has(l) {
			out = append(out, l)
		}
	}
	return out
}

// Dedupe drops later listings that share a Url with an earlier one, keeping order.
func Dedupe(listings []Listing) []Listing {
	seen := make(map[string]struct{}, len(listings))
	out := make([]Listing, 0, len(listings))
	for _, l := range listings {
		if _, ok := seen[l.Key()]; ok {
			continue
		}
		seen[l.Key()] = struct{}{}
		out = append(out, l)
	}
	return out
}
