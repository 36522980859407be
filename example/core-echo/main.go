// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Core Echo Example - Echoes every line received on a TCP port
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/destiny/asyncnet"
	"github.com/destiny/asyncnet/frame"
)

var (
	addr    = flag.String("addr", "127.0.0.1:5555", "Address to listen on")
	header  = flag.Int("header", int(frame.LineSplit), "Framing discipline (0-14)")
	timeout = flag.Duration("timeout", 0, "Close idle connections after this long (0 = never)")
	verbose = flag.Bool("verbose", false, "Verbose output")
)

func main() {
	flag.Parse()

	h := frame.Header(*header)
	if !h.Valid() {
		log.Fatalf("Invalid framing discipline %d", *header)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := asyncnet.DefaultLogger
	if *verbose {
		logger = asyncnet.DebugLogger
	}
	core := asyncnet.NewCore(ctx, asyncnet.WithLogger(logger), asyncnet.WithTimeout(*timeout))
	defer core.Shutdown()

	lh, err := core.NewListen(*addr, h, true)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	fmt.Printf("=== Core Echo Example ===\n")
	fmt.Printf("Listening on %s with %v framing (%v)\n", *addr, h, lh)

	for ctx.Err() == nil {
		if err := core.Wait(time.Second); err != nil {
			break
		}
		for {
			ev, ok := core.Read()
			if !ok {
				break
			}
			switch ev.Kind {
			case asyncnet.EventNew:
				if peer, err := asyncnet.ParsePeerInfo(ev.Data); err == nil && ev.Aux > 0 {
					fmt.Printf("%v connected from %v\n", ev.HID, peer)
				}
			case asyncnet.EventData:
				if _, err := core.SendMask(ev.HID, ev.Data, ev.Mask); err != nil {
					fmt.Printf("%v: echo failed: %v\n", ev.HID, err)
				}
			case asyncnet.EventLeave:
				fmt.Printf("%v left with code %d\n", ev.HID, ev.Code)
			}
		}
	}
	fmt.Println("Shutting down")
}
