package store

import (
	"context"
	"time"

	"github.com/Rajchodisetti/paper-trader/internal/observ"
)

// Load sources, reported for startup logging.
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
	SourceFresh  = "fresh"
)

// Loader resolves startup state: remote first, then local file, then a
// fresh account at the configured bank. Remote may be nil.
type Loader struct {
	Local       *FileStore
	Remote      *RemoteStore
	InitialBank float64
}

// Load returns the starting snapshot and where it came from. Unreachable or
// invalid sources fall through; they never abort startup.
func (l Loader) Load(ctx context.Context, now time.Time) (Snapshot, string) {
	if l.Remote != nil {
		snap, err := l.Remote.Load(ctx)
		if err == nil {
			observ.Log("state_loaded", observ.Fields{"source": SourceRemote, "bank": snap.Bank})
			return snap, SourceRemote
		}
		observ.Log("remote_load_failed", observ.Fields{"error": err.Error()})
	}

	if l.Local != nil {
		snap, ok, err := l.Local.Load()
		if err != nil {
			observ.Log("local_load_failed", observ.Fields{"path": l.Local.Path(), "error": err.Error()})
		} else if ok && snap.Valid() {
			observ.Log("state_loaded", observ.Fields{"source": SourceLocal, "bank": snap.Bank})
			return snap, SourceLocal
		}
	}

	observ.Log("state_loaded", observ.Fields{"source": SourceFresh, "bank": l.InitialBank})
	return Snapshot{
		Bank:        l.InitialBank,
		InitialBank: l.InitialBank,
		LastUpdate:  now.UTC(),
	}, SourceFresh
}
