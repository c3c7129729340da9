package training

import (
	"context"
	"time"
)

// Observation is one historical engagement measurement of a tweet at a
// point in time, as collected by the scraping pipeline.
type Observation struct {
	Text                 string
	Author               string
	Views                float64
	Likes                float64
	Retweets             float64
	Comments             float64
	AuthorFollowersCount float64
	AuthorFollowingCount float64
	AuthorTweetCount     float64
	IsBlueVerified       bool
	TweetTime            time.Time
	ObservationTime      time.Time
	AuthorCreatedAt      time.Time
}

// AgeHours is the tweet's age at observation time.
func (o Observation) AgeHours() float64 {
	return o.ObservationTime.Sub(o.TweetTime).Hours()
}

// AuthorAgeYears is the author account's age at observation time.
func (o Observation) AuthorAgeYears() float64 {
	return o.ObservationTime.Sub(o.AuthorCreatedAt).Hours() / (24 * 365)
}

// Metric returns the named engagement count.
func (o Observation) Metric(name string) float64 {
	switch name {
	case "views":
		return o.Views
	case "likes":
		return o.Likes
	case "retweets":
		return o.Retweets
	case "comments":
		return o.Comments
	}
	return 0
}

// ObservationSource supplies the historical observations the pipeline
// trains on.
type ObservationSource interface {
	Observations(ctx context.Context) ([]Observation, error)
}
