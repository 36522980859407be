// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Notify Echo Example - Joins a mesh and echoes every command back to its sender
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/destiny/asyncnet"
	"github.com/destiny/asyncnet/notify"
)

var (
	sid     = flag.Int("sid", 1, "Server id of this node")
	listen  = flag.String("listen", "127.0.0.1:6001", "Address to accept peers on")
	peers   = flag.String("peers", "", "Comma separated sid=host:port list")
	token   = flag.String("token", "", "Shared secret (empty = no authentication)")
	ping    = flag.Duration("ping", 0, "Send a ping command to every peer at this interval (0 = never)")
	verbose = flag.Bool("verbose", false, "Verbose output")
)

const (
	cmdPing = 1
	cmdEcho = 2
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []notify.Option{notify.WithToken(*token)}
	if *verbose {
		opts = append(opts,
			notify.WithLogger(asyncnet.DebugLogger),
			notify.WithLogMask(notify.LogInfo|notify.LogReject|notify.LogError|notify.LogWarning|notify.LogDebug))
	}
	mesh, err := notify.New(ctx, *sid, opts...)
	if err != nil {
		log.Fatalf("Failed to create mesh: %v", err)
	}
	defer mesh.Shutdown()

	if _, err := mesh.Listen(*listen, true); err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	for _, p := range strings.Split(*peers, ",") {
		if p == "" {
			continue
		}
		id, addr, ok := strings.Cut(p, "=")
		if !ok {
			log.Fatalf("Bad peer %q, want sid=host:port", p)
		}
		n, err := strconv.Atoi(id)
		if err != nil {
			log.Fatalf("Bad peer sid %q: %v", id, err)
		}
		if err := mesh.SidAdd(n, addr); err != nil {
			log.Fatalf("Failed to add peer %d: %v", n, err)
		}
	}

	fmt.Println("=== Notify Echo Example ===")
	fmt.Printf("Node %d on %s, peers %v\n", *sid, *listen, mesh.SidList())

	var next time.Time
	for ctx.Err() == nil {
		if err := mesh.Wait(time.Second); err != nil {
			break
		}
		if *ping > 0 && time.Now().After(next) {
			next = time.Now().Add(*ping)
			for _, p := range mesh.SidList() {
				msg := fmt.Sprintf("ping from %d at %s", *sid, time.Now().Format(time.TimeOnly))
				if err := mesh.Send(p, cmdPing, []byte(msg)); err != nil {
					fmt.Printf("sid %d: %v\n", p, err)
				}
			}
		}
		for {
			ev, ok := mesh.Read()
			if !ok {
				break
			}
			switch ev.Kind {
			case notify.EventData:
				fmt.Printf("sid %d cmd %d: %s\n", ev.SID, ev.Cmd, ev.Data)
				if ev.Cmd == cmdPing {
					mesh.Send(ev.SID, cmdEcho, ev.Data)
				}
			default:
				fmt.Println(ev)
			}
		}
	}
	fmt.Println("Shutting down")
}
