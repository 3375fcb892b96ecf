package models

// Retrospective is a board that owns cards and groups.
type Retrospective struct {
	ID             string `db:"id" json:"id"`
	Title          string `db:"title" json:"title"`
	CreatedBy      string `db:"created_by" json:"created_by"`
	CreatedAt      string `db:"created_at" json:"created_at"`
	CreatedAtEpoch int64  `db:"created_at_epoch" json:"created_at_epoch"`
}

// Board is a full snapshot of a retrospective, as consumed by exporters.
// Columns lists the board columns in display order; Watchers counts live event streams.
type Board struct {
	Retrospective *Retrospective     `json:"retrospective"`
	Columns       []Column           `json:"columns"`
	Cards         []*Card            `json:"cards"`
	Groups        []*GroupWithTotals `json:"groups"`
	Watchers      int                `json:"watchers"`
}
