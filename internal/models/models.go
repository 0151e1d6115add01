package models

import (
	"database/sql"
	"time"
)

// Session status values.
const (
	SessionLobby     = "lobby"
	SessionCountdown = "countdown"
	SessionRunning   = "running"
	SessionFinished  = "finished"
)

// Session is a persisted game session row.
type Session struct {
	ID                string       `db:"id" json:"id"`
	HostID            string       `db:"host_id" json:"host_id"`
	Title             string       `db:"title" json:"title"`
	Status            string       `db:"status" json:"status"`
	DurationSecs      int          `db:"duration_seconds" json:"duration_seconds"`
	MaxPlayers        int          `db:"max_players" json:"max_players"`
	WallActive        bool         `db:"wall_active" json:"wall_active"`
	CountdownDeadline sql.NullTime `db:"countdown_deadline" json:"countdown_deadline,omitempty"`
	TimerStart        sql.NullTime `db:"timer_start" json:"timer_start,omitempty"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
}

// LanePlayer is a persisted player row bound to one lane of a session.
// Disconnect is a soft flag; rows are kept for history.
type LanePlayer struct {
	ID           string         `db:"id" json:"id"`
	SessionID    string         `db:"session_id" json:"session_id"`
	Lane         int            `db:"lane" json:"lane"`
	DisplayName  string         `db:"display_name" json:"display_name"`
	PhotoURL     sql.NullString `db:"photo_url" json:"photo_url,omitempty"`
	Score        int            `db:"score" json:"score"`
	Disconnected bool           `db:"disconnected" json:"disconnected"`
	JoinedAt     time.Time      `db:"joined_at" json:"joined_at"`
}
