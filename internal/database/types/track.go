package types

import (
	"time"
)

// Track is a Cup of the Day map. At most one track exists per date.
type Track struct {
	UID          string    `bun:",pk"                      json:"uid"`
	Date         time.Time `bun:",type:date,unique,notnull" json:"date"`
	Name         string    `bun:",notnull"                 json:"name"`
	Author       string    `bun:",notnull"                 json:"author"`
	AuthorTime   float64   `bun:",notnull"                 json:"authorTime"`
	Tags         []string  `bun:",array"                   json:"tags"`
	ThumbnailURL string    `bun:",notnull,default:''"      json:"thumbnailUrl"`
	LoadDateTime time.Time `bun:",notnull"                 json:"loadDateTime"`
}

// TrackTag links a track to one of its styles.
type TrackTag struct {
	TrackUID string `bun:",pk"`
	StyleID  int    `bun:",pk"`
}
