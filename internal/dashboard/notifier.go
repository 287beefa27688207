package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/elimelt/notesync/internal/engine"
	"github.com/elimelt/notesync/internal/store"
)

// Notifier bridges engine progress events to the WebSocket server. It
// implements engine.Notifier and never blocks: Broadcast drops messages
// when the channel is full.
type Notifier struct {
	server *Server
	logger *log.Logger
}

// NewNotifier creates a notifier connected to a dashboard server
func NewNotifier(server *Server, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{server: server, logger: logger}
}

// JobUpdate broadcasts a job's current status and counters
func (n *Notifier) JobUpdate(job *store.Job) {
	n.send(MessageTypeJobUpdate, JobUpdateData{
		JobID:     job.ID,
		Status:    job.Status,
		CommitSHA: job.CommitSHA,
		Total:     job.TotalItems,
		Completed: job.CompletedItems,
		Failed:    job.FailedItems,
	})
}

// ItemProgress broadcasts one item's outcome
func (n *Notifier) ItemProgress(item *store.Item) {
	n.send(MessageTypeItemProgress, ItemProgressData{
		ItemID:     item.ID,
		JobID:      item.JobID,
		FilePath:   item.FilePath,
		Status:     item.Status,
		RetryCount: item.RetryCount,
		Error:      item.ErrorMessage,
	})
}

// SyncComplete broadcasts the terminal summary of a sync run
func (n *Notifier) SyncComplete(res *engine.Result) {
	n.send(MessageTypeSyncComplete, SyncCompleteData{
		JobID:     res.JobID,
		Status:    res.Status,
		CommitSHA: res.CommitSHA,
		Completed: res.Completed,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
		Message:   res.Message,
	})
}

func (n *Notifier) send(typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		n.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	n.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
