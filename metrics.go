package main

import (
	"context"
	"log"
	"time"
)

// RunMetrics logs process-wide activity counters every interval until ctx
// is cancelled, mirroring the teacher's periodic stats log.
func RunMetrics(ctx context.Context, sessions *SessionRegistry, channels *ChannelRegistry, voices *VoiceRegistry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			userCount := sessions.Count()
			if userCount == 0 {
				continue
			}
			log.Printf("[metrics] users=%d", userCount)
		}
	}
}
