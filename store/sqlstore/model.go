package sqlstore

import (
	"time"

	"github.com/IvanBrykalov/linkcache/cache"
)

// Link is the links table row. ExpiresAt holds Unix nanoseconds so that
// comparisons in SQL are plain integer comparisons.
type Link struct {
	ID        string `gorm:"column:id;type:text;primaryKey"`
	Locator   string `gorm:"column:locator;type:text;not null;uniqueIndex:idx_links_locator"`
	ExpiresAt int64  `gorm:"column:expires_at;not null;index:idx_links_expires_at"`
}

func (Link) TableName() string {
	return "links"
}

func fromRecord(rec cache.Record) Link {
	return Link{ID: rec.ID, Locator: rec.Locator, ExpiresAt: rec.ExpiresAt.UnixNano()}
}

func (l Link) record() cache.Record {
	return cache.Record{ID: l.ID, Locator: l.Locator, ExpiresAt: time.Unix(0, l.ExpiresAt)}
}
