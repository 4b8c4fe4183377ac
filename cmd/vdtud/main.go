// File: cmd/vdtud/main.go
// License: Apache-2.0
//
// vdtud is the process entrypoint for one node's kernel: it parses the
// node's own id, its tile range, its listen port, and its peers' UDP
// addresses, brings up a kernel.Kernel with one kernel.Tile per local
// tile, wires a bridge.Bridge as the Registry's remote sender, then runs
// every tile's poll loop until a shutdown signal arrives. Structured
// the way the teacher's examples/stest/server/main.go runs its own
// accept loop: flag.Parse, a signal channel, a close(shutdownCh) that
// fans out to every goroutine, and a bounded wait before forced exit.

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
	"sync"
	"syscall"
	"time"

	"github.com/momentics/vdtu/adapters"
	"github.com/momentics/vdtu/affinity"
	"github.com/momentics/vdtu/bridge"
	"github.com/momentics/vdtu/control"
	"github.com/momentics/vdtu/kernel"
)

// peerList implements flag.Value, accepting repeated -peer
// "nodeID=ip:port" flags.
type peerList struct {
	entries map[int]string
}

func (p *peerList) String() string {
	if p == nil {
		return ""
	}
	parts := make([]string, 0, len(p.entries))
	for id, addr := range p.entries {
		parts = append(parts, fmt.Sprintf("%d=%s", id, addr))
	}
	return strings.Join(parts, ",")
}

func (p *peerList) Set(s string) error {
	nodeID, addr, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("peer %q: want nodeID=ip:port", s)
	}
	id, err := strconv.Atoi(nodeID)
	if err != nil {
		return fmt.Errorf("peer %q: invalid node id: %w", s, err)
	}
	if p.entries == nil {
		p.entries = make(map[int]string)
	}
	p.entries[id] = addr
	return nil
}

func main() {
	nodeID := flag.Int("node", 0, "this process's node id")
	localTiles := flag.Int("tiles", 1, "number of tiles hosted by this node")
	tilesPerNode := flag.Int("tiles-per-node", 1, "tile id range assigned to each node")
	listenPort := flag.Int("listen", 17000, "UDP port the inter-node bridge listens on")
	idle := flag.Duration("idle", 200*time.Microsecond, "reactor idle backoff per tile")
	heartbeat := flag.Duration("heartbeat", time.Second, "status log interval")
	shutdownTimeout := flag.Duration("shutdown-timeout", 15*time.Second, "max wait for tiles to drain on shutdown")
	peers := &peerList{}
	flag.Var(peers, "peer", "remote node address as nodeID=ip:port (repeatable)")
	flag.Parse()

	logger := log.New(os.Stderr, fmt.Sprintf("[vdtud node=%d] ", *nodeID), log.LstdFlags)

	cfg := control.NewConfigStore()
	cfg.SetConfig(map[string]any{
		"EPCount":         16,
		"MsgChannels":     8,
		"MemChannels":     4,
		"LocalTileCount":  *localTiles,
		"TilesPerNode":    *tilesPerNode,
		"HeartbeatInterval": *heartbeat,
		"ShutdownTimeout": *shutdownTimeout,
		"BridgeBatchCap":  64,
	})

	debug := control.NewDebugProbes()
	control.RegisterPlatformProbes(debug)
	metrics := control.NewMetricsRegistry()

	nodes := affinity.NewNodeTable(*tilesPerNode, *nodeID)
	for id, addr := range peers.entries {
		nodes.SetAddr(id, addr)
	}

	transport, err := adapters.NewUDPDatagramTransport(uint16(*listenPort))
	if err != nil {
		logger.Fatalf("bridge transport: %v", err)
	}

	br, err := bridge.New(uint16(*nodeID), nodes, transport)
	if err != nil {
		logger.Fatalf("bridge: %v", err)
	}

	k := kernel.New(uint16(*nodeID), uint16(*localTiles), *idle, nil, nil)
	k.Registry.SetRemote(br)

	firstTile := (*nodeID) * (*tilesPerNode)
	tiles := make([]*kernel.Tile, 0, *localTiles)
	for i := 0; i < *localTiles; i++ {
		tileID := uint16(firstTile + i)
		t, err := k.NewTile(tileID, nil)
		if err != nil {
			logger.Fatalf("new tile %d: %v", tileID, err)
		}
		if err := kernel.Bootstrap(k, tileID); err != nil {
			logger.Fatalf("bootstrap tile %d: %v", tileID, err)
		}
		if err := t.RegisterSource(br); err != nil {
			logger.Fatalf("register bridge on tile %d: %v", tileID, err)
		}
		tiles = append(tiles, t)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, t := range tiles {
		wg.Add(1)
		go func(t *kernel.Tile) {
			defer wg.Done()
			if err := t.Run(ctx); err != nil {
				logger.Printf("tile %d reactor stopped: %v", t.ID, err)
			}
		}(t)
	}

	heartbeatDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(*heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatDone:
				return
			case <-ticker.C:
				metrics.Set("bridge.inbound_drops", br.InboundDrops())
				metrics.Set("bridge.outbound_drops", br.OutboundDrops())
				logger.Printf("alive: tiles=%d inbound_drops=%d outbound_drops=%d",
					len(tiles), br.InboundDrops(), br.OutboundDrops())
			}
		}
	}()

	logger.Printf("listening on :%d, tiles=%v, peers=%s", *listenPort, tileIDs(tiles), peers.String())

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	<-signalCh
	logger.Println("shutdown signal received")

	close(heartbeatDone)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(*shutdownTimeout):
		logger.Printf("forced exit after %v, some tile reactor did not stop", *shutdownTimeout)
	}

	for _, t := range tiles {
		if err := t.Close(); err != nil {
			logger.Printf("tile %d close: %v", t.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		logger.Printf("bridge close: %v", err)
	}
	logger.Println("shutdown complete")
}

func tileIDs(tiles []*kernel.Tile) []uint16 {
	ids := make([]uint16, len(tiles))
	for i, t := range tiles {
		ids[i] = t.ID
	}
	return ids
}
