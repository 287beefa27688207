package engine

import "github.com/elimelt/notesync/internal/store"

// Notifier receives progress events as a job advances. Implementations must
// not block: the engine calls these inline from the processing loop.
type Notifier interface {
	JobUpdate(job *store.Job)
	ItemProgress(item *store.Item)
	SyncComplete(res *Result)
}

type nopNotifier struct{}

func (nopNotifier) JobUpdate(*store.Job)     {}
func (nopNotifier) ItemProgress(*store.Item) {}
func (nopNotifier) SyncComplete(*Result)     {}
