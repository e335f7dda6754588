package blend

import (
	"errors"

	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
)

type lockedBuffer struct {
	buf  *hardware.VertexBuffer
	data []byte
}

/**
 * @brief Tracks the buffers locked by one blend operation so that every distinct
 * physical buffer is locked exactly once, however many elements it backs.
 */
type lockSet struct {
	read   map[uint64]bool
	write  map[uint64]bool
	bufs   map[uint64]*hardware.VertexBuffer
	locked map[uint64]*lockedBuffer
	order  []uint64
}

func newLockSet() *lockSet {
	return &lockSet{
		read:   map[uint64]bool{},
		write:  map[uint64]bool{},
		bufs:   map[uint64]*hardware.VertexBuffer{},
		locked: map[uint64]*lockedBuffer{},
	}
}

func (ls *lockSet) addSource(buf *hardware.VertexBuffer) {
	if buf == nil {
		return
	}
	ls.read[buf.ID()] = true
	ls.add(buf)
}

func (ls *lockSet) addDestination(buf *hardware.VertexBuffer) {
	if buf == nil {
		return
	}
	ls.write[buf.ID()] = true
	ls.add(buf)
}

func (ls *lockSet) add(buf *hardware.VertexBuffer) {
	if _, ok := ls.bufs[buf.ID()]; !ok {
		ls.bufs[buf.ID()] = buf
		ls.order = append(ls.order, buf.ID())
	}
}

// lockAll locks sources read-only, destinations with discard and buffers that
// are both with a normal read/write lock.
func (ls *lockSet) lockAll() error {
	for _, id := range ls.order {
		opts := hardware.LockDiscard
		switch {
		case ls.read[id] && ls.write[id]:
			opts = hardware.LockNormal
		case ls.read[id]:
			opts = hardware.LockReadOnly
		}
		buf := ls.bufs[id]
		data, err := buf.LockAll(opts)
		if err != nil {
			return err
		}
		ls.locked[id] = &lockedBuffer{buf: buf, data: data}
	}
	return nil
}

func (ls *lockSet) data(buf *hardware.VertexBuffer) []byte {
	return ls.locked[buf.ID()].data
}

func (ls *lockSet) unlockAll() error {
	var errs []error
	for _, id := range ls.order {
		if lb, ok := ls.locked[id]; ok {
			errs = append(errs, lb.buf.Unlock())
			delete(ls.locked, id)
		}
	}
	return errors.Join(errs...)
}
