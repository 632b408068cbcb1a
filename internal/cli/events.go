package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/msggate/internal/redisstore"
	"github.com/roach88/msggate/internal/store"
	"github.com/roach88/msggate/internal/wire"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	After string
	Limit int
}

// EventView is one outbox event as printed. ID is the SQLite row id or the
// Redis stream entry id.
type EventView struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	SourceChainID wire.ChainID    `json:"source_chain_id"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List outbox events",
		Long: `List CounterInitialized and MessageAdmitted events in the order they were
committed. Pass the id of the last event seen as --after to page.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.After, "after", "", "only events after this id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 for all)")

	return cmd
}

func runEvents(rootOpts *RootOptions, opts *EventsOptions, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	backend, err := rootOpts.openBackend(cmd.Context(), formatter)
	if err != nil {
		return err
	}
	defer backend.Close()

	var events []EventView
	switch b := backend.(type) {
	case *store.Store:
		var after int64
		if opts.After != "" {
			after, err = strconv.ParseInt(opts.After, 10, 64)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, fmt.Errorf("--after: %w", err))
			}
		}
		stored, err := b.Events(cmd.Context(), after, opts.Limit)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeBackend, err)
		}
		for _, ev := range stored {
			events = append(events, EventView{
				ID:            strconv.FormatInt(ev.ID, 10),
				Kind:          ev.Kind,
				SourceChainID: ev.SourceChainID,
				Payload:       json.RawMessage(ev.Payload),
			})
		}
	case *redisstore.Store:
		stream, err := b.Events(cmd.Context(), opts.After, int64(opts.Limit))
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeBackend, err)
		}
		for _, ev := range stream {
			events = append(events, EventView{
				ID:            ev.ID,
				Kind:          ev.Kind,
				SourceChainID: ev.SourceChainID,
				Payload:       json.RawMessage(ev.Payload),
			})
		}
	default:
		return formatter.Fail(ExitCommandError, ErrCodeBackend, fmt.Errorf("backend %T has no event log", backend))
	}

	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "%s  %-20s chain=%s  %s\n", ev.ID, ev.Kind, ev.SourceChainID, ev.Payload)
	}
	if events == nil {
		events = []EventView{}
		b.WriteString("No events\n")
	}
	return formatter.Render(events, b.String())
}
