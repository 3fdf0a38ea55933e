package observ

import (
	"encoding/json"
	"fmt"
	"time"
)

// Fields is the key/value payload attached to a log event.
type Fields = map[string]any

// Log emits one JSON line per event. Timestamps are UTC RFC3339Nano.
func Log(event string, kv Fields) {
	if kv == nil {
		kv = Fields{}
	}
	kv["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	kv["event"] = event
	b, _ := json.Marshal(kv)
	fmt.Println(string(b))
}
