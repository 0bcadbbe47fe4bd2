package types

// QueueLane is one of the three per-session priority lanes (spec §3, §4.4).
type QueueLane string

const (
	LaneSystemUrgent QueueLane = "system_urgent"
	LaneSteer        QueueLane = "steer"
	LaneFollowUp     QueueLane = "follow_up"
)

// AllLanes lists the three lanes in descending scheduling priority, matching
// the cross-lane ordering spec §5 fixes at checkpoints: system-urgent >
// steer > follow-up.
var AllLanes = []QueueLane{LaneSystemUrgent, LaneSteer, LaneFollowUp}

// QueueEventKind discriminates a lane journal event (spec §3, §4.4).
type QueueEventKind string

const (
	QueueEventEnqueued    QueueEventKind = "enqueued"
	QueueEventCanceled    QueueEventKind = "canceled"
	QueueEventMaterialized QueueEventKind = "materialized"
)

// QueueEvent is one journaled occurrence for a single queue item within a
// lane. Cursor is an opaque, monotonically non-decreasing string, unique and
// totally ordered within the lane (spec §4.4).
type QueueEvent struct {
	Cursor          string         `json:"cursor"`
	Lane            QueueLane      `json:"lane"`
	Kind            QueueEventKind `json:"kind"`
	ItemID          string         `json:"item_id"`
	Payload         string         `json:"payload,omitempty"`
	TranscriptEntry *int64         `json:"transcript_entry_id,omitempty"`
	At              int64          `json:"at"`
}

// QueueItem is a still-pending (enqueued, not canceled, not materialized)
// item, the derived view clients see (spec §3).
type QueueItem struct {
	ID      string `json:"id"`
	Lane    QueueLane `json:"lane"`
	Payload string `json:"payload"`
	At      int64  `json:"at"`
}

// QueueBackfill is the per-lane state a Session Actor keeps in memory and
// hands to new subscribers (spec §4.2 "State").
type QueueBackfill struct {
	Lane    QueueLane     `json:"lane"`
	Cursor  string        `json:"cursor"`
	Pending []QueueItem   `json:"pending"`
	Journal []QueueEvent  `json:"journal"`
}
