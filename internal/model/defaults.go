package model

import "time"

// Shared defaults used by the daemon and the admin commands.
const (
	DefaultUpdateInterval = 60 * time.Second
	DefaultQueryTimeout   = 30 * time.Second
	DefaultWorkers        = 4
	DefaultInfoPrefix     = "alpenhorn_chime.info."
)
