// File: affinity/affinity.go
//
// Tile-to-node routing affinity: which physical node a tile's traffic
// belongs to, and the UDP address that node is reachable at. This
// replaces per-thread CPU pinning (irrelevant to a single-process
// emulation) with the routing concern the bridge actually needs.

package affinity

import (
	"fmt"
	"sync"

	"github.com/momentics/vdtu/api"
)

// NodeTable maps a tile id to the node it lives on, and a node id to
// its reachable UDP address. TilesPerNode partitions the flat tile id
// space into equally sized node ranges.
type NodeTable struct {
	mu           sync.RWMutex
	tilesPerNode int
	localNode    int
	addrs        map[int]string // nodeID -> "ip:port"
}

// NewNodeTable builds a table with the given tile-per-node partition
// size and the id of the node this process runs as.
func NewNodeTable(tilesPerNode, localNode int) *NodeTable {
	if tilesPerNode <= 0 {
		tilesPerNode = 1
	}
	return &NodeTable{
		tilesPerNode: tilesPerNode,
		localNode:    localNode,
		addrs:        make(map[int]string),
	}
}

// NodeOf returns the node id a tile belongs to.
func (t *NodeTable) NodeOf(tileID int) int {
	if tileID < 0 {
		tileID = 0
	}
	return tileID / t.tilesPerNode
}

// IsLocal reports whether tileID is owned by this process's node.
func (t *NodeTable) IsLocal(tileID int) bool {
	return t.NodeOf(tileID) == t.localNode
}

// SetAddr registers the UDP address ("ip:port") a remote node is
// reachable at.
func (t *NodeTable) SetAddr(nodeID int, addr string) {
	t.mu.Lock()
	t.addrs[nodeID] = addr
	t.mu.Unlock()
}

// AddrOf returns the UDP address for nodeID, or an error if unknown.
func (t *NodeTable) AddrOf(nodeID int) (string, error) {
	t.mu.RLock()
	addr, ok := t.addrs[nodeID]
	t.mu.RUnlock()
	if !ok {
		return "", api.NewError(api.ErrCodeNotFound, fmt.Sprintf("no address registered for node %d", nodeID))
	}
	return addr, nil
}

// AddrForTile resolves the UDP address of the node owning tileID.
func (t *NodeTable) AddrForTile(tileID int) (string, error) {
	return t.AddrOf(t.NodeOf(tileID))
}
