package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Alessandro1981/etf-checker/internal/models"
	"github.com/spf13/cobra"
)

func TestPrintBaselines(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	state := models.State{
		Baselines:          map[string]float64{"SWDA.MI": 90.5, "CSPX.L": 512.25},
		LastBaselineUpdate: time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC),
	}
	if err := printBaselines(cmd, state); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Index(out, "CSPX.L") > strings.Index(out, "SWDA.MI") {
		t.Errorf("symbols not sorted:\n%s", out)
	}
	for _, want := range []string{"512.2500", "90.5000", "2024-05-06 08:00:00 UTC"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := printBaselines(cmd, models.NewState()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No baselines") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "poll", "baselines"} {
		if _, _, err := root.Find([]string{name}); err != nil {
			t.Errorf("subcommand %s missing: %v", name, err)
		}
	}
	if f := root.PersistentFlags().Lookup("options"); f == nil || f.DefValue != "/data/options.json" {
		t.Errorf("unexpected options flag: %+v", f)
	}
}
