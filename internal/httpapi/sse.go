package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

// setSSEHeaders sets the headers required for a long-lived, unbuffered
// Server-Sent Events response, including disabling proxy buffering on
// nginx-fronted deployments.
func setSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// streamChunks writes each ChatChunk as one `data: <json>\n\n` SSE frame,
// flushing after every chunk so the client observes partial output as it
// is produced rather than buffered until the channel closes.
func streamChunks(w http.ResponseWriter, flusher http.Flusher, chunks <-chan chatmodel.ChatChunk) {
	for chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

// retryAfterSeconds formats d as a whole-second Retry-After header value,
// rounding up so a caller never retries before the bucket actually refills.
func retryAfterSeconds(d time.Duration) string {
	seconds := int(d / time.Second)
	if d%time.Second != 0 {
		seconds++
	}
	return strconv.Itoa(seconds)
}
