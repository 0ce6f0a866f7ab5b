package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohammed1916/marine-anomaly/internal/chunkstore"
	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/windows"
)

// run executes a fresh command tree with args and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// writeCSV writes two vessels of n reports each, 60s apart from t0.
func writeCSV(t *testing.T, dir string, n, t0 int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("t,vessel_id,lon,lat,heading,speed,course\n")
	for _, v := range []string{"alpha", "beta"} {
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "%d,%s,23.%d,37.%d,,%d,90\n", t0+i*60, v, i, i, 5+i)
		}
	}
	path := filepath.Join(dir, "raw.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestHelp(t *testing.T) {
	out, err := run(t, "help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.Contains(out, "Available Commands") {
		t.Errorf("help output lacks command list:\n%s", out)
	}
	for _, name := range []string{"extract", "convert", "serve", "bounds", "gaps"} {
		if !strings.Contains(out, name) {
			t.Errorf("help output lacks %q", name)
		}
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  string
		flag string
		typ  string
	}{
		{"extract", "input", "stringArray"},
		{"extract", "window-size", "int"},
		{"extract", "parallel", "int"},
		{"convert", "row-group-size", "int"},
		{"serve", "listen", "string"},
		{"bounds", "file", "string"},
		{"bounds", "geo", "bool"},
		{"gaps", "max-windows", "int"},
	}
	root := NewRootCommand()
	for _, tt := range tests {
		cmd, _, err := root.Find([]string{tt.cmd})
		if err != nil {
			t.Fatalf("find %s: %v", tt.cmd, err)
		}
		f := cmd.Flag(tt.flag)
		if f == nil {
			t.Errorf("%s: missing flag --%s", tt.cmd, tt.flag)
			continue
		}
		if got := f.Value.Type(); got != tt.typ {
			t.Errorf("%s --%s: type %s, want %s", tt.cmd, tt.flag, got, tt.typ)
		}
	}
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []string
		year    int
		month   int
		want    []string
		wantErr error
	}{
		{"flags", []string{"a.csv"}, 2018, 1, []string{"2018_jan"}, nil},
		{"unit prefix", []string{"2018-02=a.csv", "2018_mar=b.parquet"}, 0, 0, []string{"2018_feb", "2018_mar"}, nil},
		{"no input", nil, 2018, 1, nil, errors.ErrMissingField},
		{"no key", []string{"a.csv"}, 0, 0, nil, errors.ErrInvalidArgument},
		{"bad month", []string{"a.csv"}, 2018, 13, nil, errors.ErrInvalidArgument},
		{"bad extension", []string{"a.json"}, 2018, 1, nil, errors.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units, err := parseUnits(tt.inputs, tt.year, tt.month)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseUnits: %v", err)
			}
			var got []string
			for _, u := range units {
				got = append(got, u.Key.String())
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("keys = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConvertThenBounds(t *testing.T) {
	dir := t.TempDir()
	csv := writeCSV(t, dir, 4, 1514764800)
	out := filepath.Join(dir, "2018", "2018-01.parquet")

	stdout, err := run(t, "convert", "--input", csv, "--output", out, "--row-group-size", "3")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !strings.Contains(stdout, "8 rows (0 skipped)") {
		t.Errorf("unexpected convert output %q", stdout)
	}

	stdout, err = run(t, "bounds", "--file", out)
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	if got, want := strings.TrimSpace(stdout), `{"min":1514764800,"max":1514764980}`; got != want {
		t.Errorf("bounds = %s, want %s", got, want)
	}

	// lat 37.0..37.3, lon 23.0..23.3 for both vessels
	stdout, err = run(t, "bounds", "--file", out, "--geo")
	if err != nil {
		t.Fatalf("bounds --geo: %v", err)
	}
	if got, want := strings.TrimSpace(stdout), `{"north":37.3,"south":37,"east":23.3,"west":23}`; got != want {
		t.Errorf("geo bounds = %s, want %s", got, want)
	}
}

func TestRootCommandsAreIndependent(t *testing.T) {
	extract, _, err := NewRootCommand().Find([]string{"extract"})
	if err != nil {
		t.Fatalf("find extract: %v", err)
	}
	if err := extract.ParseFlags([]string{"--input", "a.csv"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	second, _, err := NewRootCommand().Find([]string{"extract"})
	if err != nil {
		t.Fatalf("find extract: %v", err)
	}
	if got := second.Flag("input").Value.String(); got != "[]" {
		t.Errorf("fresh extract command sees --input %s", got)
	}
}

func TestBoundsMissingFile(t *testing.T) {
	if _, err := run(t, "bounds", "--file", filepath.Join(t.TempDir(), "nope.parquet")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestExtractThenGaps(t *testing.T) {
	dir := t.TempDir()
	csv := writeCSV(t, dir, 5, 1000)
	root := filepath.Join(dir, "processed")

	stdout, err := run(t, "extract", "--input", csv, "--year", "2018", "--month", "1",
		"--window-size", "3", "--chunk-size", "2", "--output", root)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(stdout, "2018_jan\tok\t8 windows") {
		t.Errorf("unexpected extract output %q", stdout)
	}

	kv, err := chunkstore.NewFileStore(root)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	r, err := windows.OpenPair(context.Background(), kv, windows.Key{Year: 2018, Month: 1})
	if err != nil {
		t.Fatalf("OpenPair: %v", err)
	}
	if !r.Complete() || r.NumWindows() != 8 {
		t.Errorf("complete=%v windows=%d, want complete with 8", r.Complete(), r.NumWindows())
	}

	stdout, err = run(t, "gaps", "--year", "2018", "--month", "1", "--output", root)
	if err != nil {
		t.Fatalf("gaps: %v", err)
	}
	// 6 valid windows with 2 gaps of 60s each
	for _, want := range []string{"gaps:   12", "mean:   60.00s"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("gaps output lacks %q:\n%s", want, stdout)
		}
	}

	// a complete unit cannot be rewritten
	if _, err := run(t, "extract", "--input", csv, "--year", "2018", "--month", "1",
		"--window-size", "3", "--output", root); !errors.Is(err, errors.ErrStoreImmutable) {
		t.Errorf("expected ErrStoreImmutable, got %v", err)
	}
}
