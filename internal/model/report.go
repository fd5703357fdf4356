package model

import "time"

type SiteReport struct {
	Site       string `json:"site"`
	Fetched    int    `json:"fetched"`
	New        int    `json:"new"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	FetchError string `json:"fetchError,omitempty"`
}

type CycleReport struct {
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Sites      []SiteReport `json:"sites"`
}

func (r CycleReport) TotalSent() int {
	total := 0
	for _, s := range r.Sites {
		total += s.Sent
	}
	return total
}
