// Command download fetches the interpreter build into a library directory.
//
//	download <url> <output>
//
// If output is a directory, the file is written as python.wasm inside it.
// Existing files are left alone.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/caffeineduck/mnemobridge/internal/logging"
	"github.com/caffeineduck/mnemobridge/language/python"
)

var wasmMagic = []byte{0x00, 'a', 's', 'm'}

func main() {
	log := logging.Console(os.Stderr, "info")

	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: download <url> <output>")
		os.Exit(1)
	}

	url, output := os.Args[1], os.Args[2]
	if fi, err := os.Stat(output); err == nil && fi.IsDir() {
		output = filepath.Join(output, python.WasmFile)
	}

	if _, err := os.Stat(output); err == nil {
		log.Info().Str("path", output).Msg("already present")
		return
	}

	n, err := fetch(url, output)
	if err != nil {
		log.Fatal().Err(err).Str("url", url).Msg("download failed")
	}
	log.Info().Str("path", output).Int64("bytes", n).Msg("downloaded")
}

// fetch writes url to output through a temporary file. Nothing is left at
// output unless the body starts with the wasm magic and is fully copied.
func fetch(url, output string) (int64, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return 0, err
	}
	f, err := os.CreateTemp(filepath.Dir(output), ".download-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(f.Name())

	head := make([]byte, len(wasmMagic))
	if _, err := io.ReadFull(resp.Body, head); err != nil {
		f.Close()
		return 0, fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(head, wasmMagic) {
		f.Close()
		return 0, errors.New("not a WebAssembly module")
	}

	n, err := io.Copy(f, io.MultiReader(bytes.NewReader(head), resp.Body))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	return n, os.Rename(f.Name(), output)
}
