package orchestrator

import (
	"context"
	"fmt"

	"asistan/internal/session"
)

// History returns the current conversation, oldest first.
func (o *Orchestrator) History() []session.Turn { return o.sess.History().Turns() }

// HistorySummary is a one-line Turkish description of the conversation size.
func (o *Orchestrator) HistorySummary() string {
	n := o.sess.History().Len()
	if n == 0 {
		return "Henüz konuşma yok."
	}
	return fmt.Sprintf("Toplam %d mesaj geçmişi var.", n/2)
}

// ClearHistory saves the current session (when persistence is on) and
// starts a fresh one.
func (o *Orchestrator) ClearHistory(ctx context.Context) error {
	o.turn.Lock()
	defer o.turn.Unlock()
	return o.sess.Clear(ctx)
}

// SaveSession persists the current session and returns its id.
func (o *Orchestrator) SaveSession(ctx context.Context) (string, error) {
	o.turn.Lock()
	defer o.turn.Unlock()
	return o.sess.Save(ctx)
}

// LoadSession replaces the current conversation with a saved one.
func (o *Orchestrator) LoadSession(ctx context.Context, id string) error {
	o.turn.Lock()
	defer o.turn.Unlock()
	return o.sess.Load(ctx, id)
}
