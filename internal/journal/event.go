package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/attendance"
	"rollcall/internal/queue"
)

// EventType tags commit events on the queue.
const EventType = "attendance.committed"

// Entry is one committed record.
type Entry struct {
	RegistrationID int64             `json:"registration_id"`
	Status         attendance.Status `json:"status"`
	Remarks        string            `json:"remarks"`
}

// Event records one successful commit to the attendance service.
type Event struct {
	BatchID     string          `json:"batch_id"`
	Operator    string          `json:"operator"`
	ClassID     int64           `json:"class_id"`
	Date        attendance.Date `json:"date"`
	CommittedAt time.Time       `json:"committed_at"`
	Entries     []Entry         `json:"entries"`
}

// FromCommit builds an event with a fresh batch id.
func FromCommit(operator string, c attendance.Commit) Event {
	evt := Event{
		BatchID:     uuid.NewString(),
		Operator:    operator,
		ClassID:     c.ClassID,
		Date:        c.Date,
		CommittedAt: c.CommittedAt.UTC(),
		Entries:     make([]Entry, 0, len(c.Records)),
	}
	for _, r := range c.Records {
		evt.Entries = append(evt.Entries, Entry{RegistrationID: r.RegistrationID, Status: r.Status, Remarks: r.Remarks})
	}
	return evt
}

// Encode wraps the event in a queue message.
func (e Event) Encode() (queue.Message, error) {
	msg, err := queue.NewMessage(EventType, e)
	if err != nil {
		return queue.Message{}, err
	}
	msg.ID = e.BatchID
	return msg, nil
}

// Decode reads a commit event from a queue message.
func Decode(msg queue.Message) (Event, error) {
	if msg.Type != EventType {
		return Event{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var evt Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return Event{}, fmt.Errorf("decode commit event: %w", err)
	}
	if err := evt.validate(); err != nil {
		return Event{}, err
	}
	return evt, nil
}

func (e Event) validate() error {
	if _, err := uuid.Parse(e.BatchID); err != nil {
		return fmt.Errorf("invalid batch id %q: %w", e.BatchID, err)
	}
	if e.Date.IsZero() {
		return errors.New("commit event has no date")
	}
	if len(e.Entries) == 0 {
		return errors.New("commit event has no entries")
	}
	return nil
}
