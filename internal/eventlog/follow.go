package eventlog

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/cmdbus/internal/filter"
	"github.com/dyluth/cmdbus/pkg/commandbus"
)

// Feed is a live stream of committed events.
type Feed interface {
	Events() <-chan commandbus.EventMessage
	Errors() <-chan error
}

// Follow writes events from feed matching criteria until ctx is cancelled or the
// feed closes. Feed errors are written to errW and do not stop following.
func Follow(ctx context.Context, feed Feed, criteria *filter.Criteria, format OutputFormat, w, errW io.Writer) error {
	if criteria == nil {
		criteria = &filter.Criteria{}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-feed.Events():
			if !ok {
				return nil
			}
			if !criteria.Matches(e) {
				continue
			}
			switch format {
			case OutputFormatJSONL:
				if err := FormatJSONL(w, e); err != nil {
					return err
				}
			default:
				FormatLine(w, e)
			}

		case err, ok := <-feed.Errors():
			if !ok {
				return nil
			}
			fmt.Fprintf(errW, "⚠️  %v\n", err)
		}
	}
}
