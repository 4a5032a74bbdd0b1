package hianime

// SearchResult is one entry on the catalog's search results page.
type SearchResult struct {
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	Img      string `json:"img"`
	Type     string `json:"type"`
	Duration string `json:"duration"`
	Sub      string `json:"sub"`
	Dub      string `json:"dub"`
	Rating   string `json:"rating"`
}

// Character pairs a character with its voice actor as rendered on the
// watch page.
type Character struct {
	CharName string `json:"charName"`
	CharRole string `json:"charRole"`
	CharImg  string `json:"charImg"`
	VAName   string `json:"vaName"`
	VALang   string `json:"vaLang"`
	VAImg    string `json:"vaImg"`
}

// Related is a recommendation sidebar entry.
type Related struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
	Img  string `json:"img"`
	Sub  string `json:"sub"`
	Dub  string `json:"dub"`
	Type string `json:"type"`
}

// Episode is one episode of a series, sorted by Num in detail responses.
type Episode struct {
	Num   int    `json:"num"`
	Title string `json:"title"`
	EpID  string `json:"epId"`
}

// AnimeDetail is the scraped watch-page view of a series plus its
// episode list.
type AnimeDetail struct {
	ID          string      `json:"id"`
	Slug        string      `json:"slug"`
	Title       string      `json:"title"`
	Poster      string      `json:"poster"`
	Description string      `json:"description"`
	Rating      string      `json:"rating"`
	Quality     string      `json:"quality"`
	SubCount    string      `json:"subCount"`
	DubCount    string      `json:"dubCount"`
	TotalEps    string      `json:"totalEps"`
	AnimeType   string      `json:"animeType"`
	Duration    string      `json:"duration"`
	Studio      string      `json:"studio"`
	Genres      []string    `json:"genres"`
	Characters  []Character `json:"characters"`
	Related     []Related   `json:"related"`
	Episodes    []Episode   `json:"episodes"`
}
