package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/rpgng/internal/eventbus"
)

const timeFormat = "2006-01-02T15:04:05Z"

func main() {
	var (
		natsURL    = flag.String("nats", "nats://127.0.0.1:4222", "NATS server URL")
		stream     = flag.String("stream", "RPGNG_EVENTS", "JetStream stream name")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		worldID    = flag.String("world", "", "World ID filter")
		asJSON     = flag.Bool("json", false, "Print raw envelopes as JSON")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "event-cli: %v\n", err)
		os.Exit(1)
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	filter := eventbus.Filter{Types: parseStringList(*eventTypes)}
	if *worldID != "" {
		filter.Sources = []string{*worldID}
	}

	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		printEvent(ev, *asJSON)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "event-cli: subscribe: %v\n", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	fmt.Printf("tailing %s on %s (Ctrl+C to stop)\n", *stream, *natsURL)
	<-ctx.Done()
	st := bus.Metrics()
	fmt.Printf("received %d events\n", st.Consumed)
}

func printEvent(ev *eventbus.Envelope, asJSON bool) {
	if asJSON {
		data, _ := json.Marshal(ev)
		fmt.Println(string(data))
		return
	}
	fmt.Printf("%s %-18s world=%s %s\n", ev.Timestamp.Format(timeFormat), ev.EventType, ev.Source, ev.Payload)
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
