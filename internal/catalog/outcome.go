package catalog

import "strings"

type Status int

const (
	StatusOk Status = iota
	StatusDegraded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusDegraded:
		return "degraded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome opisuje jak przeszedł jeden etap dla jednej jednostki pracy
// (strona, rekord). Degraded niesie wartość zastępczą i powody.
type Outcome struct {
	Status  Status
	Reasons []string
}

func Ok() Outcome { return Outcome{Status: StatusOk} }

func Degraded(reasons ...string) Outcome {
	return Outcome{Status: StatusDegraded, Reasons: reasons}
}

func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reasons: []string{reason}}
}

// Degrade dopisuje powód; Failed zostaje Failed.
func (o *Outcome) Degrade(reason string) {
	if o.Status == StatusOk {
		o.Status = StatusDegraded
	}
	o.Reasons = append(o.Reasons, reason)
}

func (o Outcome) IsOk() bool       { return o.Status == StatusOk }
func (o Outcome) IsDegraded() bool { return o.Status == StatusDegraded }
func (o Outcome) IsFailed() bool   { return o.Status == StatusFailed }

func (o Outcome) String() string {
	if len(o.Reasons) == 0 {
		return o.Status.String()
	}
	return o.Status.String() + ": " + strings.Join(o.Reasons, "; ")
}
