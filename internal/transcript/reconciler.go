package transcript

import (
	"time"

	"realtime-voice-agent/backend/internal/realtime"
	"realtime-voice-agent/backend/pkg/logger"
)

// DefaultErrorMessage is surfaced when an error event carries no message.
const DefaultErrorMessage = "the agent returned an error"

// maxLoggedFrame bounds how much of a dropped frame ends up in the log.
const maxLoggedFrame = 200

// Reconciler owns the message list of one session. It is not safe for
// concurrent use: events must be ingested one at a time, in delivery order.
type Reconciler struct {
	messages []Message
	index    map[string]int
	now      func() time.Time
	log      *logger.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock sets the clock used to timestamp new messages.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithLogger sets the logger used to report dropped frames.
func WithLogger(log *logger.Logger) Option {
	return func(r *Reconciler) {
		r.log = log
	}
}

// New creates an empty Reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		index: make(map[string]int),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IngestFrame decodes a raw frame and ingests it. A malformed frame is
// logged and dropped; the message list is left untouched.
func (r *Reconciler) IngestFrame(frame []byte) (Delta, error) {
	ev, err := realtime.Decode(frame)
	if err != nil {
		if r.log != nil {
			r.log.Warn("dropping malformed event",
				"error", err.Error(),
				"frame", truncate(frame, maxLoggedFrame),
			)
		}
		return Delta{}, err
	}
	return r.Ingest(ev), nil
}

// Ingest applies one event to the message list and reports what changed.
func (r *Reconciler) Ingest(ev *realtime.Event) Delta {
	if ev == nil {
		return Delta{}
	}

	kind := ev.Kind()
	d := Delta{Kind: kind}

	var changes []Change
	switch kind {
	case realtime.KindResponseCreated:
		changes = r.open(ev.ResponseKey(), RoleAssistant)

	case realtime.KindResponseTextDelta,
		realtime.KindAudioTranscriptDelta,
		realtime.KindContentPartDelta:
		changes = r.appendText(ev.ResponseKey(), RoleAssistant, ev.Fragment())

	case realtime.KindResponseDone:
		changes = r.replaceText(ev.ResponseKey(), RoleAssistant, realtime.ExtractResponseText(ev.Response), true)

	case realtime.KindAudioTranscriptDone,
		realtime.KindContentPartDone:
		changes = r.replaceText(ev.ResponseKey(), RoleAssistant, ev.Fragment(), false)

	case realtime.KindOutputItemDone:
		changes = r.replaceText(ev.ResponseKey(), RoleAssistant, realtime.ExtractItemText(ev.Item), false)

	case realtime.KindResponseError:
		d.Error = ev.ErrorMessage()
		if d.Error == "" {
			d.Error = DefaultErrorMessage
		}

	case realtime.KindConversationItemCreated:
		changes = r.itemCreated(ev.Item)

	case realtime.KindInputTranscriptionDelta:
		changes = r.appendText(ev.ItemKey(), RoleUser, ev.Fragment())

	case realtime.KindInputTranscriptionDone:
		changes = r.replaceText(ev.ItemKey(), RoleUser, ev.Fragment(), true)

	case realtime.KindConversationItemCompleted:
		if ev.Item != nil && roleOf(ev.Item) == RoleUser {
			changes = r.replaceText(ev.Item.ID, RoleUser, realtime.ExtractItemText(ev.Item), true)
		}
	}

	d.Changes = changes
	return d
}

// Messages returns a copy of the current message list.
func (r *Reconciler) Messages() []Message {
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Len returns the number of messages.
func (r *Reconciler) Len() int {
	return len(r.messages)
}

// Reset clears all state. Used when a session is torn down.
func (r *Reconciler) Reset() {
	r.messages = nil
	r.index = make(map[string]int)
}

// open registers an empty streaming message unless id is already known.
func (r *Reconciler) open(id string, role Role) []Change {
	if id == "" {
		return nil
	}
	if _, ok := r.index[id]; ok {
		return nil
	}
	return []Change{r.push(Message{ID: id, Role: role, IsStreaming: true})}
}

// appendText appends a fragment, creating a streaming message on first
// sight. Empty fragments and ids held by the other role are no-ops.
func (r *Reconciler) appendText(id string, role Role, fragment string) []Change {
	if id == "" || fragment == "" {
		return nil
	}
	i, ok := r.index[id]
	if !ok {
		return []Change{r.push(Message{ID: id, Role: role, Text: fragment, IsStreaming: true})}
	}
	if r.messages[i].Role != role {
		return nil
	}
	r.messages[i].Text += fragment
	return []Change{r.changed(i)}
}

// replaceText replaces the text of a message wholesale and, when finalize
// is set, marks it finalized. Empty text never overwrites accumulated text,
// and a message held by the other role is left alone.
func (r *Reconciler) replaceText(id string, role Role, text string, finalize bool) []Change {
	if id == "" {
		return nil
	}
	i, ok := r.index[id]
	if !ok {
		if text == "" {
			return nil
		}
		return []Change{r.push(Message{ID: id, Role: role, Text: text, IsStreaming: !finalize})}
	}

	m := &r.messages[i]
	if m.Role != role {
		return nil
	}
	dirty := false
	if text != "" && text != m.Text {
		m.Text = text
		dirty = true
	}
	if finalize && m.IsStreaming {
		m.IsStreaming = false
		dirty = true
	}
	if !dirty {
		return nil
	}
	return []Change{r.changed(i)}
}

func (r *Reconciler) itemCreated(item *realtime.Item) []Change {
	if item == nil {
		return nil
	}
	text := realtime.ExtractItemText(item)

	switch item.Role {
	case realtime.RoleUser:
		if item.ID == "" {
			return nil
		}
		i, ok := r.index[item.ID]
		if !ok {
			return []Change{r.push(Message{ID: item.ID, Role: RoleUser, Text: text, IsStreaming: text == ""})}
		}
		if r.messages[i].Role != RoleUser {
			return nil
		}
		return r.replaceText(item.ID, RoleUser, text, text != "" && r.messages[i].IsStreaming)

	case realtime.RoleAssistant:
		if text == "" {
			return nil
		}
		// The created item does not name the response it belongs to, so the
		// first assistant message still waiting for text is patched by
		// position. This is a protocol ambiguity, not a keyed lookup.
		for i := range r.messages {
			m := &r.messages[i]
			if m.Role != RoleAssistant || (!m.IsStreaming && m.Text != "") {
				continue
			}
			m.Text = text
			m.IsStreaming = false
			return []Change{r.changed(i)}
		}
		if _, ok := r.index[item.ID]; ok || item.ID == "" {
			return nil
		}
		return []Change{r.push(Message{ID: item.ID, Role: RoleAssistant, Text: text})}
	}
	return nil
}

func (r *Reconciler) push(m Message) Change {
	m.Timestamp = r.now()
	r.messages = append(r.messages, m)
	i := len(r.messages) - 1
	r.index[m.ID] = i
	return Change{Op: OpAppend, Index: i, Message: m}
}

func (r *Reconciler) changed(i int) Change {
	return Change{Op: OpUpdate, Index: i, Message: r.messages[i]}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
