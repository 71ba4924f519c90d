package model

import (
	"time"

	"github.com/google/uuid"
)

// App is a registered client application whose traffic is being monitored.
// Ingestion only reads apps; CRUD lives elsewhere.
type App struct {
	ID       int64     `db:"id"`
	Name     string    `db:"name"`
	ClientID uuid.UUID `db:"client_id"`
	Active   bool      `db:"active"`
}

// Consumer is an identified end-caller of a monitored app's API, created
// lazily on first sighting during ingestion. Identifier is unique per app.
type Consumer struct {
	ID         int64     `db:"id"`
	AppID      int64     `db:"app_id"`
	Identifier string    `db:"identifier"`
	Name       string    `db:"name"`
	GroupID    *int64    `db:"group_id"`
	Hidden     bool      `db:"hidden"`
	CreatedAt  time.Time `db:"created_at"`
}

// ConsumerSpec is the creation payload for a consumer first seen in a batch.
type ConsumerSpec struct {
	Identifier string
	Name       string
	GroupID    *int64
	Hidden     bool
}
