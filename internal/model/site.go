package model

const (
	FormatHTML = "html"
	FormatRSS  = "rss"
	FormatJSON = "json"

	DefaultRowSelector   = "tr.topic-list-item"
	DefaultTitleSelector = ".link-top-line"
)

// Site is a configured listing page. URL partitions the seen-set.
type Site struct {
	Name          string `yaml:"name" validate:"omitempty,max=128"`
	URL           string `yaml:"url" validate:"required,url"`
	Format        string `yaml:"format" validate:"omitempty,oneof=html rss json"`
	RowSelector   string `yaml:"row_selector"`
	TitleSelector string `yaml:"title_selector"`
}

// WithDefaults fills the optional fields.
func (s Site) WithDefaults() Site {
	if s.Format == "" {
		s.Format = FormatHTML
	}
	if s.RowSelector == "" {
		s.RowSelector = DefaultRowSelector
	}
	if s.TitleSelector == "" {
		s.TitleSelector = DefaultTitleSelector
	}
	return s
}

// Label is the human name of the site, falling back to its URL.
func (s Site) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.URL
}
