package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFetch(t *testing.T) {
	module := append([]byte{0x00, 'a', 's', 'm'}, 1, 0, 0, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/python.wasm":
			w.Write(module)
		case "/page":
			w.Write([]byte("<html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "lib", "python.wasm")

	n, err := fetch(srv.URL+"/python.wasm", out)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(module)) {
		t.Errorf("n = %d", n)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(module) {
		t.Errorf("data = %v", data)
	}

	bad := filepath.Join(dir, "bad.wasm")
	if _, err := fetch(srv.URL+"/page", bad); err == nil || !strings.Contains(err.Error(), "WebAssembly") {
		t.Errorf("err = %v", err)
	}
	if _, err := fetch(srv.URL+"/missing", bad); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v", err)
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Error("rejected download left a file")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".download-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
