// Package mnemobridge hosts the Mnemosyne review application in an embedded
// interpreter and connects it to a review screen.
//
// # Overview
//
// The application runs on one background worker thread. It draws the screen
// only through eight fire-and-forget callbacks, each of which posts a small
// update to the UI loop. The screen asks the application to show the answer
// or grade a card by posting tasks to the worker.
//
// # Basic Usage
//
//	screen := memui.New()
//	screen.Start()
//
//	w := worker.New(worker.Config{
//	    Start: host.StartConfig{
//	        Paths:      host.DefaultPaths("/data/data/org.mnemosyne"),
//	        DataDir:    "/sdcard/Mnemosyne/",
//	        DBFilename: "default.db",
//	    },
//	}, screen, screen)
//	go w.Run(ctx)
//
//	h, err := w.WaitReady(ctx)
//	h.ShowAnswer()
//	h.Grade(4)
//
// # Interpreters
//
// Backends register themselves with [host.RegisterLanguage] when imported:
// language/python runs a WASI Python build under wazero, language/javascript
// runs goja in process.
//
// See the [host], [worker], [bridge], and [ui] packages for detailed API
// documentation.
package mnemobridge
