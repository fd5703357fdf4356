package model

// Topic is one entry of a forum listing page. Link is its identity.
type Topic struct {
	Title string
	Link  string
}
