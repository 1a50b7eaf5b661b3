package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"asistan/pkg/types"
)

func printStatus(w io.Writer, st types.StatusResponse, now time.Time) {
	up := time.Duration(st.UptimeSeconds) * time.Second
	fmt.Fprintf(w, "state:   %s (up %s)\n", st.State, up)
	r := st.Residency
	if r.Probe.Available {
		fmt.Fprintf(w, "gpu:     %.1f/%.1f GB used (%.0f%%), ceiling %.1f GB\n", r.Probe.UsedGB, r.Probe.TotalGB, r.Probe.Percent, r.CeilingGB)
	} else {
		fmt.Fprintf(w, "gpu:     no probe, ceiling %.1f GB\n", r.CeilingGB)
	}
	fmt.Fprintf(w, "models:  %d loads, %d evictions\n", r.LoadsTotal, r.EvictionsTotal)
	if len(r.Slots) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, s := range r.Slots {
			fmt.Fprintf(tw, "  %s\t%s\t%.1f GB\tused %s\n", s.Class, s.ModelID, s.FootprintGB, relTime(s.LastUsed, now))
		}
		_ = tw.Flush()
	}
	if r.LastError != "" {
		fmt.Fprintf(w, "last error: %s\n", r.LastError)
	}
	printCache(w, st.Cache)
	s := st.Session
	fmt.Fprintf(w, "session: %s, %d messages (%d user, %d assistant)\n", s.ID, s.TotalMessages, s.UserMessages, s.AssistantMessages)
}

func printCache(w io.Writer, c types.CacheStatus) {
	state := "on"
	if !c.Enabled {
		state = "off"
	}
	fmt.Fprintf(w, "cache:   %s, %s entries, %s, %s hits / %s misses\n",
		state, humanize.Comma(int64(c.Entries)), c.SizeHuman, humanize.Comma(c.Hits), humanize.Comma(c.Misses))
}

func printSessions(w io.Writer, list []types.SessionSummary, now time.Time) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no saved sessions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tMESSAGES\tUSER\tASSISTANT")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", s.ID, relTime(s.StartedAt, now), s.TotalMessages, s.UserMessages, s.AssistantMessages)
	}
	_ = tw.Flush()
}

func relTime(unix int64, now time.Time) string {
	if unix == 0 {
		return "never"
	}
	return humanize.RelTime(time.Unix(unix, 0), now, "ago", "from now")
}
