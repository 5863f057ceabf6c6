package api

import (
	"time"

	"github.com/MrWong99/chatsim/internal/stream"
)

func pacingOf(minSec, maxSec int) stream.Pacing {
	return stream.Pacing{Min: time.Duration(minSec) * time.Second, Max: time.Duration(maxSec) * time.Second}
}
