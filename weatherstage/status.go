package weatherstage

import "time"

// Status of the last transmission attempt
type Status struct {
	Time       time.Time `json:"time"`
	OK         bool      `json:"ok"`
	Skipped    bool      `json:"skipped,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (p *Publisher) setStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// Status returns last transmission status, false if nothing was sent yet
func (p *Publisher) Status() (Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, !p.status.Time.IsZero()
}
