package javascript

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/mnemobridge/host"
	"github.com/caffeineduck/mnemobridge/hostfunc"
	"github.com/rs/zerolog"
)

const reviewScript = `
var mnemosyne = {
	controller: null,
	review_controller: function () { return this.controller; },
};

function start_mnemosyne(dataDir, db, bridge) {
	mnemosyne.controller = {
		show_answer: function () {
			bridge.setAnswer("<b>" + db + "</b>");
		},
		grade_answer: function (grade) {
			bridge.setStatusbarText("graded " + grade);
			return grade * 2;
		},
	};
	bridge.setQuestion("<p>" + dataDir + "</p>");
}
`

func open(t *testing.T, opts ...host.OpenOption) *Interpreter {
	t.Helper()
	cfg := host.OpenConfig{Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	in, err := Language{}.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { in.Close() })
	return in.(*Interpreter)
}

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRegistered(t *testing.T) {
	lang, err := host.LookupLanguage("javascript")
	if err != nil {
		t.Fatal(err)
	}
	if lang.Name() != Name {
		t.Errorf("Name() = %q", lang.Name())
	}
}

func TestExecOutput(t *testing.T) {
	in := open(t)

	out, err := in.Exec(context.Background(), `console.log("hello")`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("expected 'hello', got %q", out)
	}
}

func TestExecValue(t *testing.T) {
	in := open(t)

	out, err := in.Exec(context.Background(), `[1,2,3,4,5].reduce((a,b) => a + b, 0)`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "15" {
		t.Errorf("expected '15', got %q", out)
	}
}

func TestExecKeepsState(t *testing.T) {
	in := open(t)
	ctx := context.Background()

	if _, err := in.Exec(ctx, `var counter = 41`); err != nil {
		t.Fatal(err)
	}
	out, err := in.Exec(ctx, `counter + 1`)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "42" {
		t.Errorf("expected '42', got %q", out)
	}
}

func TestExecError(t *testing.T) {
	in := open(t)

	_, err := in.Exec(context.Background(), `throw new Error("boom")`)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected boom error, got %v", err)
	}
}

func TestExecTimeout(t *testing.T) {
	in := open(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := in.Exec(ctx, `while(true){}`)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("interrupt took too long: %v", time.Since(start))
	}

	out, err := in.Exec(context.Background(), `1 + 1`)
	if err != nil {
		t.Fatalf("runtime unusable after interrupt: %v", err)
	}
	if strings.TrimSpace(out) != "2" {
		t.Errorf("got %q", out)
	}
}

func TestInsertPath(t *testing.T) {
	in := open(t)
	ctx := context.Background()

	for _, entry := range []string{"zip", "lib", "dynload", "files"} {
		if err := in.InsertPath(ctx, 0, entry); err != nil {
			t.Fatal(err)
		}
	}
	if err := in.InsertPath(ctx, 4, "tail"); err != nil {
		t.Fatal(err)
	}

	got, err := in.Path(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"files", "dynload", "lib", "zip", "tail"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("path = %v, want %v", got, want)
	}

	out, err := in.Exec(ctx, `sys.path[0]`)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "files" {
		t.Errorf("script sees sys.path[0] = %q", out)
	}
}

func TestLoadModuleAndCall(t *testing.T) {
	dir := t.TempDir()
	entry := writeScript(t, dir, "review.js", reviewScript)
	in := open(t)
	ctx := context.Background()

	var calls []string
	r := hostfunc.NewRegistry()
	for _, name := range []string{"setQuestion", "setAnswer", "setStatusbarText"} {
		r.Register(name, func(_ context.Context, args map[string]any) (any, error) {
			for _, v := range args {
				calls = append(calls, name+":"+v.(string))
			}
			return nil, nil
		}, "text")
	}

	if err := in.LoadModule(ctx, entry); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	app, err := in.Global(ctx, "mnemosyne")
	if err != nil || app == nil {
		t.Fatalf("Global: %v, %v", app, err)
	}
	bridge, err := in.Bind(ctx, "bridge", r)
	if err != nil {
		t.Fatal(err)
	}

	res, err := in.Call(ctx, "start_mnemosyne", "/data", "default.db", bridge)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res != nil {
		t.Errorf("start returned %v, want nil", res)
	}

	ctrl, err := app.Call(ctx, "review_controller")
	if err != nil || ctrl == nil {
		t.Fatalf("review_controller: %v, %v", ctrl, err)
	}
	if _, err := ctrl.Call(ctx, "show_answer"); err != nil {
		t.Fatal(err)
	}
	doubled, err := ctrl.Call(ctx, "grade_answer", 3)
	if err != nil {
		t.Fatal(err)
	}
	if got := doubled.(*Object).Export(); got != int64(6) {
		t.Errorf("grade_answer returned %v (%T)", got, got)
	}

	want := []string{
		"setQuestion:<p>/data</p>",
		"setAnswer:<b>default.db</b>",
		"setStatusbarText:graded 3",
	}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestMissingSymbols(t *testing.T) {
	in := open(t)
	ctx := context.Background()

	if _, err := in.Exec(ctx, `var app = {}; var notfn = 1`); err != nil {
		t.Fatal(err)
	}
	if _, err := in.Call(ctx, "start_mnemosyne"); !errors.Is(err, host.ErrEntrySymbolMissing) {
		t.Errorf("missing function err = %v", err)
	}
	if _, err := in.Call(ctx, "notfn"); !errors.Is(err, host.ErrEntrySymbolMissing) {
		t.Errorf("non-function err = %v", err)
	}
	if obj, err := in.Global(ctx, "nothing"); obj != nil || err != nil {
		t.Errorf("missing global = %v, %v", obj, err)
	}

	app, err := in.Global(ctx, "app")
	if err != nil || app == nil {
		t.Fatal("app not found")
	}
	if _, err := app.Call(ctx, "review_controller"); !errors.Is(err, host.ErrEntrySymbolMissing) {
		t.Errorf("missing method err = %v", err)
	}
}

func TestBindErrorThrows(t *testing.T) {
	in := open(t)
	ctx := context.Background()

	r := hostfunc.NewRegistry()
	r.Register("setGradesEnabled", func(_ context.Context, args map[string]any) (any, error) {
		_, err := hostfunc.Bool(args, "isEnabled")
		return nil, err
	}, "isEnabled")
	if _, err := in.Bind(ctx, "bridge", r); err != nil {
		t.Fatal(err)
	}

	out, err := in.Exec(ctx, `
var caught = "none";
try { bridge.setGradesEnabled("yes"); } catch (e) { caught = "caught"; }
caught`)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "caught" {
		t.Errorf("bad argument not thrown into script: %q", out)
	}
	if _, err := in.Exec(ctx, `bridge.setGradesEnabled(true)`); err != nil {
		t.Errorf("valid call failed: %v", err)
	}
}

func TestRequireFromPath(t *testing.T) {
	lib := t.TempDir()
	writeScript(t, lib, "grades.js", `module.exports = { max: 5 };`)
	entry := writeScript(t, t.TempDir(), "main.js", `var max = require("grades").max;`)

	in := open(t)
	ctx := context.Background()
	if err := in.InsertPath(ctx, 0, lib); err != nil {
		t.Fatal(err)
	}
	if err := in.InsertPath(ctx, 0, filepath.Join(lib, "missing.zip")); err != nil {
		t.Fatal(err)
	}
	if err := in.LoadModule(ctx, entry); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	out, err := in.Exec(ctx, `max`)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "5" {
		t.Errorf("max = %q", out)
	}
}

func TestMountsRestrictLoading(t *testing.T) {
	inside := t.TempDir()
	outside := t.TempDir()
	ok := writeScript(t, inside, "ok.js", `var loaded = true;`)
	denied := writeScript(t, outside, "denied.js", `var loaded = true;`)

	in := open(t, host.WithMount(inside, host.MountReadOnly))
	ctx := context.Background()

	if err := in.LoadModule(ctx, ok); err != nil {
		t.Errorf("mounted script: %v", err)
	}
	if err := in.LoadModule(ctx, denied); err == nil {
		t.Error("script outside mounts loaded")
	}
}

func TestClose(t *testing.T) {
	in := open(t)
	if err := in.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := in.Exec(context.Background(), `1`); !errors.Is(err, host.ErrClosed) {
		t.Errorf("Exec after close err = %v", err)
	}
	if err := in.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
