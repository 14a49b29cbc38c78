// Package notification carries the user-visible outcome of a flush run to
// whatever surfaces the host UI offers.
package notification

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Notifier receives the aggregate summary of a flush run that synced at
// least one item.
type Notifier interface {
	SyncCompleted(synced, failed int)
}

// Summary renders the user-visible text for a run outcome.
func Summary(synced, failed int) string {
	if failed == 0 {
		return fmt.Sprintf("%d data offline berhasil disinkronkan.", synced)
	}
	return fmt.Sprintf("%d data offline berhasil disinkronkan, %d gagal dan akan dicoba lagi.", synced, failed)
}

// LogNotifier writes run summaries to the agent log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

// SyncCompleted implements Notifier.
func (n *LogNotifier) SyncCompleted(synced, failed int) {
	n.log.Info().
		Int("synced", synced).
		Int("failed", failed).
		Msg(Summary(synced, failed))
}

// Multi fans one notification out to several sinks.
type Multi []Notifier

// SyncCompleted implements Notifier.
func (m Multi) SyncCompleted(synced, failed int) {
	for _, n := range m {
		n.SyncCompleted(synced, failed)
	}
}
