package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/srg/blescope/inspector"
	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/display"
	"github.com/srg/blescope/internal/session"
	"golang.org/x/term"
)

// printer serialises command output. Callbacks arrive on the central queue
// while the command goroutine prints results, so every write takes mu.
type printer struct {
	mu        sync.Mutex
	out       io.Writer
	lastState device.PowerState
	hasState  bool

	inserted *color.Color
	updated  *color.Color
	cleared  *color.Color
	good     *color.Color
	bad      *color.Color
	dim      *color.Color
}

func newPrinter(out io.Writer) *printer {
	p := &printer{
		out:      out,
		inserted: color.New(color.FgGreen),
		updated:  color.New(color.FgYellow),
		cleared:  color.New(color.FgRed),
		good:     color.New(color.FgGreen, color.Bold),
		bad:      color.New(color.FgRed, color.Bold),
		dim:      color.New(color.Faint),
	}
	if !isTerminal(out) {
		for _, c := range []*color.Color{p.inserted, p.updated, p.cleared, p.good, p.bad, p.dim} {
			c.DisableColor()
		}
	}
	return p
}

// isTerminal reports whether w is a terminal file.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *printer) printf(c *color.Color, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c == nil {
		fmt.Fprintf(p.out, format, args...)
		return
	}
	c.Fprintf(p.out, format, args...)
}

// stateLine prints the radio state once per change.
func (p *printer) stateLine(state device.PowerState) {
	p.mu.Lock()
	if p.hasState && p.lastState == state {
		p.mu.Unlock()
		return
	}
	p.hasState, p.lastState = true, state
	p.mu.Unlock()

	c := p.bad
	if state == device.StatePoweredOn {
		c = p.good
	}
	p.printf(c, "Bluetooth: %s\n", state)
}

// peripheralEvent prints one line per affected row of the peripheral list.
func (p *printer) peripheralEvent(e session.Event, rows []*session.PeripheralHandle) {
	switch e.Kind {
	case session.ClearedAll:
		p.printf(p.cleared, "x peripheral list cleared\n")
		return
	case session.Inserted:
		for _, i := range e.Indices {
			if i < len(rows) {
				p.printf(p.inserted, "+ %s\n", describeHandle(rows[i]))
			}
		}
	case session.Updated:
		for _, i := range e.Indices {
			if i < len(rows) {
				p.printf(p.updated, "~ %s\n", describeHandle(rows[i]))
			}
		}
	}
}

func describeHandle(h *session.PeripheralHandle) string {
	link := ""
	if h.Connected() {
		link = " [connected]"
	}
	return fmt.Sprintf("%s  %s  %d dBm%s", h.ID(), h.DisplayName(), h.RSSI(), link)
}

// valueLine prints a characteristic value with a timestamp.
func (p *printer) valueLine(at time.Time, rec session.CharacteristicRecord, format display.Format) {
	p.printf(nil, "%s %s %s\n",
		p.dim.Sprint(at.Format("15:04:05.000")),
		rec.Label(),
		display.MustProject(rec.Value, format))
}

func (p *printer) notifyLine(rec session.CharacteristicRecord) {
	if rec.Notifying {
		p.printf(p.inserted, "Subscribed to %s (%s)\n", rec.Label(), rec.Key())
		return
	}
	p.printf(p.updated, "Unsubscribed from %s (%s)\n", rec.Label(), rec.Key())
}

type peripheralRow struct {
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	Services    []string  `json:"services"`
	LastSeen    time.Time `json:"last_seen"`
}

func toRows(handles []*session.PeripheralHandle) []peripheralRow {
	rows := make([]peripheralRow, 0, len(handles))
	for _, h := range handles {
		rows = append(rows, peripheralRow{
			Address:     h.ID(),
			Name:        h.DisplayName(),
			RSSI:        h.RSSI(),
			Connectable: h.Connectable(),
			Services:    h.AdvertisedServices(),
			LastSeen:    h.LastSeen(),
		})
	}
	return rows
}

func (p *printer) peripheralTable(handles []*session.PeripheralHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(handles) == 0 {
		fmt.Fprintln(p.out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, row := range toRows(handles) {
		name := row.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(row.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}
		lastSeen := time.Since(row.LastSeen).Truncate(time.Second)

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s ago\n", name, row.Address, row.RSSI, services, lastSeen)
	}
	return w.Flush()
}

func (p *printer) json(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	encoder := json.NewEncoder(p.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// snapshotTree prints the GATT profile as an indented tree.
func (p *printer) snapshotTree(snap *inspector.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s (%s) %d dBm\n", snap.Name, snap.Address, snap.RSSI)
	if len(snap.Services) == 0 {
		fmt.Fprintln(p.out, "  no services discovered")
	}
	for _, svc := range snap.Services {
		fmt.Fprintf(p.out, "  Service %s%s\n", svc.UUID, named(svc.Name))
		for _, chr := range svc.Characteristics {
			fmt.Fprintf(p.out, "    Characteristic %s%s [%s]\n", chr.UUID, named(chr.Name), strings.Join(chr.Properties, ", "))
			if chr.Value != "" {
				fmt.Fprintf(p.out, "      value: %s\n", chr.Value)
			}
			for _, d := range chr.Descriptors {
				fmt.Fprintf(p.out, "      Descriptor %s%s", d.UUID, named(d.Name))
				if d.Value != "" {
					fmt.Fprintf(p.out, ": %s", d.Value)
				}
				fmt.Fprintln(p.out)
			}
		}
	}
	if !snap.Complete {
		p.bad.Fprintln(p.out, "  (incomplete)")
	}
}

func named(name string) string {
	if name == "" {
		return ""
	}
	return " (" + name + ")"
}

// history prints and drains every recorded sample, grouped by characteristic.
func (p *printer) history(h *session.History, labels map[string]string, format display.Format) {
	keys := h.Keys()
	sort.Strings(keys)

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, "History:")
	for _, key := range keys {
		label := labels[key]
		if label == "" {
			label = key
		}
		samples := h.Drain(key)
		fmt.Fprintf(p.out, "  %s: %d samples", label, len(samples))
		if dropped := h.Dropped(key); dropped > 0 {
			fmt.Fprintf(p.out, " (%d older dropped)", dropped)
		}
		fmt.Fprintln(p.out)
		for _, s := range samples {
			fmt.Fprintf(p.out, "    %s %s\n", s.At.Format("15:04:05.000"), display.MustProject(s.Value, format))
		}
	}
}
