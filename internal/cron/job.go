package cron

import (
	"encoding/json"
	"time"
)

// Kind distinguishes the three schedule shapes a job may have (§4.8).
type Kind string

const (
	KindAt    Kind = "at"
	KindEvery Kind = "every"
	KindCron  Kind = "cron"
)

// payloadKindAgentTurn is the only payload kind the spec defines (§3).
const payloadKindAgentTurn = "agent_turn"

// Job is a single persisted schedule entry. In memory it is kept as flat
// fields for convenience; MarshalJSON/UnmarshalJSON translate to and from
// the nested schedule{}/payload{}/state{} on-disk layout documented in §6.
type Job struct {
	ID      string
	Name    string
	Kind    Kind
	Message string

	AtMs         int64
	EverySeconds int64
	CronExpr     string
	CronTZ       string

	Deliver bool
	Channel string
	To      string

	Enabled        bool
	DeleteAfterRun bool
	NextRunMs      int64
	LastRunMs      int64

	LastStatus string
	LastError  string

	CreatedMs int64
	UpdatedMs int64
}

func nowMs() int64 { return time.Now().UnixMilli() }

// SessionKey is the session a cron-triggered turn runs under (§4.2, §4.8).
func (j *Job) SessionKey() string { return "cron:" + j.ID }

// touch stamps UpdatedMs (and, the first time, CreatedMs) with now.
func (j *Job) touch(now int64) {
	if j.CreatedMs == 0 {
		j.CreatedMs = now
	}
	j.UpdatedMs = now
}

// scheduleDoc is the §6 `schedule{kind, atMs?, everyMs?, expr?, tz?}` shape.
type scheduleDoc struct {
	Kind    Kind   `json:"kind"`
	AtMs    int64  `json:"atMs,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
	Expr    string `json:"expr,omitempty"`
	TZ      string `json:"tz,omitempty"`
}

// payloadDoc is the §6 `payload{kind, message, deliver, channel?, to?}` shape.
type payloadDoc struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Deliver bool   `json:"deliver"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

// stateDoc is the §6 `state{nextRunAtMs?, lastRunAtMs?, lastStatus?,
// lastError?}` shape.
type stateDoc struct {
	NextRunAtMs int64  `json:"nextRunAtMs,omitempty"`
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

// jobDoc is the §6 on-disk job record: nested schedule/payload/state,
// camelCase, with createdAtMs/updatedAtMs at the top level.
type jobDoc struct {
	ID             string      `json:"id"`
	Name           string      `json:"name,omitempty"`
	Enabled        bool        `json:"enabled"`
	Schedule       scheduleDoc `json:"schedule"`
	Payload        payloadDoc  `json:"payload"`
	State          stateDoc    `json:"state"`
	CreatedAtMs    int64       `json:"createdAtMs"`
	UpdatedAtMs    int64       `json:"updatedAtMs"`
	DeleteAfterRun bool        `json:"deleteAfterRun"`
}

// MarshalJSON emits the §6 nested on-disk layout from the flat in-memory
// fields.
func (j *Job) MarshalJSON() ([]byte, error) {
	doc := jobDoc{
		ID:      j.ID,
		Name:    j.Name,
		Enabled: j.Enabled,
		Schedule: scheduleDoc{
			Kind: j.Kind,
			Expr: j.CronExpr,
			TZ:   j.CronTZ,
		},
		Payload: payloadDoc{
			Kind:    payloadKindAgentTurn,
			Message: j.Message,
			Deliver: j.Deliver,
			Channel: j.Channel,
			To:      j.To,
		},
		State: stateDoc{
			NextRunAtMs: j.NextRunMs,
			LastRunAtMs: j.LastRunMs,
			LastStatus:  j.LastStatus,
			LastError:   j.LastError,
		},
		CreatedAtMs:    j.CreatedMs,
		UpdatedAtMs:    j.UpdatedMs,
		DeleteAfterRun: j.DeleteAfterRun,
	}
	switch j.Kind {
	case KindAt:
		doc.Schedule.AtMs = j.AtMs
	case KindEvery:
		doc.Schedule.EveryMs = j.EverySeconds * 1000
	}
	return json.Marshal(doc)
}

// UnmarshalJSON parses the §6 nested on-disk layout back into the flat
// in-memory fields.
func (j *Job) UnmarshalJSON(data []byte) error {
	var doc jobDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*j = Job{
		ID:             doc.ID,
		Name:           doc.Name,
		Kind:           doc.Schedule.Kind,
		Message:        doc.Payload.Message,
		AtMs:           doc.Schedule.AtMs,
		EverySeconds:   doc.Schedule.EveryMs / 1000,
		CronExpr:       doc.Schedule.Expr,
		CronTZ:         doc.Schedule.TZ,
		Deliver:        doc.Payload.Deliver,
		Channel:        doc.Payload.Channel,
		To:             doc.Payload.To,
		Enabled:        doc.Enabled,
		DeleteAfterRun: doc.DeleteAfterRun,
		NextRunMs:      doc.State.NextRunAtMs,
		LastRunMs:      doc.State.LastRunAtMs,
		LastStatus:     doc.State.LastStatus,
		LastError:      doc.State.LastError,
		CreatedMs:      doc.CreatedAtMs,
		UpdatedMs:      doc.UpdatedAtMs,
	}
	return nil
}
