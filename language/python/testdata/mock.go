//go:build wasip1

// Mock interpreter for testing the python backend without a real Python
// build. It speaks the prelude's protocol and plays a tiny review app.
// Build with: GOOS=wasip1 GOARCH=wasm go build -o mock.wasm mock.go
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

const (
	appHandle        = 1
	bridgeHandle     = 2
	controllerHandle = 3
)

var (
	in       = bufio.NewReader(os.Stdin)
	path     = []string{"/stdlib"}
	loaded   bool
	bridgeAs string
	seq      uint64
)

type command struct {
	Seq    uint64           `json:"seq"`
	Type   string           `json:"type"`
	Code   string           `json:"code"`
	Path   string           `json:"path"`
	Name   string           `json:"name"`
	Index  *int             `json:"index"`
	Entry  *string          `json:"entry"`
	Target *int             `json:"target"`
	Fn     string           `json:"fn"`
	Args   []map[string]any `json:"args"`
}

func emit(prefix string, v any) {
	data, _ := json.Marshal(v)
	fmt.Fprint(os.Stderr, prefix+string(data)+"\x00")
}

func done(v map[string]any) {
	if v == nil {
		v = map[string]any{}
	}
	v["seq"] = seq
	emit("\x00CLE_DONE:", v)
}

func fail(kind, msg string) {
	emit("\x00CLE_ERROR:", map[string]any{"kind": kind, "message": msg, "seq": seq})
}

func hostCall(fn string, args map[string]any) {
	emit("\x00CLE:", map[string]any{"obj": bridgeAs, "fn": fn, "args": args})
	in.ReadString('\n')
}

func main() {
	fmt.Fprint(os.Stderr, "\x00CLE_READY\x00")

	for {
		line, err := in.ReadString('\n')
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal([]byte(line), &cmd); err != nil {
			continue
		}

		seq = cmd.Seq
		switch cmd.Type {
		case "exit":
			return
		case "exec":
			fmt.Print(cmd.Code)
			done(nil)
		case "path":
			if cmd.Entry != nil {
				i := *cmd.Index
				path = append(path[:i], append([]string{*cmd.Entry}, path[i:]...)...)
			}
			done(map[string]any{"value": path})
		case "load":
			if _, err := os.ReadFile(cmd.Path); err != nil {
				fail("exception", err.Error())
				continue
			}
			loaded = true
			done(nil)
		case "global":
			if loaded && cmd.Name == "mnemosyne" {
				done(map[string]any{"handle": appHandle})
				continue
			}
			done(map[string]any{"handle": nil})
		case "bind":
			bridgeAs = cmd.Name
			done(map[string]any{"handle": bridgeHandle})
		case "call":
			call(cmd)
		default:
			fail("protocol", "unknown command: "+cmd.Type)
		}
	}
}

func call(cmd command) {
	target := 0
	if cmd.Target != nil {
		target = *cmd.Target
	}
	switch {
	case target == 0 && cmd.Fn == "start_mnemosyne" && loaded:
		dataDir, _ := cmd.Args[0]["v"].(string)
		hostCall("setQuestion", map[string]any{"html": "<p>" + dataDir + "</p>"})
		done(map[string]any{"handle": nil})
	case target == appHandle && cmd.Fn == "review_controller":
		done(map[string]any{"handle": controllerHandle, "value": "<controller>"})
	case target == controllerHandle && cmd.Fn == "show_answer":
		hostCall("setAnswer", map[string]any{"html": "<b>answer</b>"})
		done(map[string]any{"handle": nil})
	case target == controllerHandle && cmd.Fn == "grade_answer":
		g, _ := cmd.Args[0]["v"].(float64)
		hostCall("setStatusbarText", map[string]any{"text": fmt.Sprintf("graded %d", int(g))})
		done(map[string]any{"handle": nil})
	default:
		fail("missing", cmd.Fn)
	}
}
