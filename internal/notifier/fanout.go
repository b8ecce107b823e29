package notifier

import (
	"context"
	"log"

	"crcbank/internal/model"
)

// Notifier delivers a notice.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notice) error
}

// Fanout delivers to Primary and copies the notice to every entry in Copies.
// Only the primary delivery decides success; failed copies are logged.
type Fanout struct {
	Primary Notifier
	Copies  []Notifier
}

func (f *Fanout) Notify(ctx context.Context, n *model.Notice) error {
	if err := f.Primary.Notify(ctx, n); err != nil {
		return err
	}
	for _, c := range f.Copies {
		if err := c.Notify(ctx, n); err != nil {
			log.Printf("[WARN] copy of %s notice for %s not delivered: %v", n.Kind, n.Account, err)
		}
	}
	return nil
}

// LogNotifier only logs notices; used when no mail relay is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n *model.Notice) error {
	log.Printf("[INFO] notice %s for %s (level %v, usage %.1f%%)", n.Kind, n.Account, n.Level, n.UsagePercent)
	return nil
}
