// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/Thermoquad/isplink/pkg/uuencode"
)

type simState int

const (
	simUnsynced simState = iota
	simAwaitSync
	simAwaitClock
	simReady
	simRecvBinary
	simRecvUU
	simSendUU
)

// simDevice is an in-process LPC bootloader implementing Transport.
type simDevice struct {
	mu     sync.Mutex
	cond   *sync.Cond
	out    bytes.Buffer
	closed bool

	state    simState
	line     []byte
	echo     bool
	unlocked bool
	probes   int

	// Behaviour knobs
	ignoreProbes   int  // probes answered with silence
	echoProbes     int  // '?' characters echoed before Synchronized
	garbageOnSync  int  // first n Synchronized acks answered with ERR instead of OK
	uuencode       bool // data moves as UU lines
	noIdent        bool // J answers INVALID_COMMAND
	partID         uint32
	bootMajor      int
	bootMinor      int
	failCopyAt     int64 // C to this flash address answers SECTOR_NOT_PREPARED
	silentCopyAt   int64 // C to this flash address is never answered
	corruptReadSum int   // first n uu read checksums are wrong

	flash []byte
	ram   map[uint32]byte

	// pending transfer
	xferAddr  uint32
	xferLen   int
	xferBuf   []byte
	xferLines int
	pendingUU []byte

	commands []string
	written  bytes.Buffer
}

func newSimDevice() *simDevice {
	d := &simDevice{
		echo:         true,
		partID:       0x26113F37,
		bootMajor:    4,
		bootMinor:    1,
		failCopyAt:   -1,
		silentCopyAt: -1,
		flash:        bytes.Repeat([]byte{0xFF}, 64*1024),
		ram:          make(map[uint32]byte),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *simDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.out.Len() == 0 && !d.closed {
		d.cond.Wait()
	}
	if d.out.Len() == 0 {
		return 0, io.EOF
	}
	return d.out.Read(p)
}

func (d *simDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, io.ErrClosedPipe
	}
	d.written.Write(p)
	for _, c := range p {
		d.input(c)
	}
	d.cond.Broadcast()
	return len(p), nil
}

func (d *simDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cond.Broadcast()
	return nil
}

func (d *simDevice) send(format string, args ...interface{}) {
	fmt.Fprintf(&d.out, format, args...)
}

func (d *simDevice) status(code int) {
	d.send("%d\r\n", code)
}

// commandLog returns the command lines received after synchronization.
func (d *simDevice) commandLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

func (d *simDevice) probeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.probes
}

func (d *simDevice) input(c byte) {
	if d.state == simRecvBinary {
		d.ram[d.xferAddr+uint32(len(d.xferBuf))] = c
		d.xferBuf = append(d.xferBuf, c)
		if len(d.xferBuf) == d.xferLen {
			d.state = simReady
		}
		return
	}

	// a probe restarts synchronization, as after a device reset
	if c == ProbeChar && len(d.line) == 0 && d.state <= simReady {
		d.probes++
		if d.ignoreProbes > 0 {
			d.ignoreProbes--
			return
		}
		d.echo, d.unlocked = true, false
		d.send("%s%s\r\n", strings.Repeat("?", d.echoProbes), SyncToken)
		d.state = simAwaitSync
		return
	}

	if c != '\n' {
		d.line = append(d.line, c)
		return
	}
	line := strings.TrimRight(string(d.line), "\r")
	d.line = d.line[:0]
	d.handleLine(line)
}

func (d *simDevice) handleLine(line string) {
	switch d.state {
	case simUnsynced:
		return
	case simAwaitSync:
		if line != SyncToken {
			return
		}
		d.send("%s\r\n", SyncToken)
		if d.garbageOnSync > 0 {
			d.garbageOnSync--
			d.send("ERR\r\n")
			return
		}
		d.send("OK\r\n")
		d.state = simAwaitClock
		return
	case simAwaitClock:
		if _, err := strconv.Atoi(line); err != nil {
			return
		}
		d.send("%s\r\nOK\r\n", line)
		d.state = simReady
		return
	case simRecvUU:
		d.recvUU(line)
		return
	case simSendUU:
		if d.echo {
			d.send("%s\r\n", line)
		}
		switch line {
		case "OK":
			d.pendingUU = d.pendingUU[min(len(d.pendingUU), uuencode.LineBytes*uuencode.BlockLines):]
			if len(d.pendingUU) == 0 {
				d.state = simReady
				return
			}
		case "RESEND":
		default:
			return
		}
		d.sendUUBlock()
		return
	}

	if d.echo {
		d.send("%s\r\n", line)
	}
	d.commands = append(d.commands, line)
	d.command(strings.Fields(line))
}

func (d *simDevice) command(f []string) {
	if len(f) == 0 {
		d.status(InvalidCommand)
		return
	}
	args := make([]int64, 0, len(f)-1)
	for _, a := range f[1:] {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			d.status(ParamError)
			return
		}
		args = append(args, v)
	}

	switch f[0] {
	case "A":
		d.status(CmdSuccess)
		d.echo = args[0] == 1
	case "U":
		if args[0] != UnlockCode {
			d.status(InvalidCode)
			return
		}
		d.unlocked = true
		d.status(CmdSuccess)
	case "J":
		if d.noIdent {
			d.status(InvalidCommand)
			return
		}
		d.status(CmdSuccess)
		d.send("%d\r\n", d.partID)
	case "K":
		d.status(CmdSuccess)
		d.send("%d\r\n%d\r\n", d.bootMinor, d.bootMajor)
	case "N":
		d.status(CmdSuccess)
		d.send("1\r\n2\r\n3\r\n4\r\n")
	case "R":
		addr, n := uint32(args[0]), int(args[1])
		if addr%4 != 0 {
			d.status(AddrError)
			return
		}
		if n%4 != 0 {
			d.status(CountError)
			return
		}
		if int(addr)+n > len(d.flash) {
			d.status(SrcAddrNotMapped)
			return
		}
		d.status(CmdSuccess)
		data := d.flash[addr : int(addr)+n]
		if !d.uuencode {
			d.out.Write(data)
			return
		}
		d.pendingUU = append([]byte(nil), data...)
		d.state = simSendUU
		d.sendUUBlock()
	case "W":
		if args[1]%4 != 0 {
			d.status(CountError)
			return
		}
		d.status(CmdSuccess)
		d.xferAddr, d.xferLen, d.xferBuf, d.xferLines = uint32(args[0]), int(args[1]), nil, 0
		if d.uuencode {
			d.state = simRecvUU
		} else {
			d.state = simRecvBinary
		}
	case "P":
		if !d.unlocked {
			d.status(CmdLocked)
			return
		}
		d.status(CmdSuccess)
	case "E":
		if !d.unlocked {
			d.status(CmdLocked)
			return
		}
		sectors := LPC17xxSectors()
		var base uint64
		for i, size := range sectors {
			if i >= int(args[0]) && i <= int(args[1]) && base < uint64(len(d.flash)) {
				end := min(base+uint64(size), uint64(len(d.flash)))
				for a := base; a < end; a++ {
					d.flash[a] = 0xFF
				}
			}
			base += uint64(size)
		}
		d.status(CmdSuccess)
	case "C":
		dst, src, n := args[0], uint32(args[1]), int(args[2])
		if dst == d.silentCopyAt {
			return
		}
		if dst == d.failCopyAt {
			d.status(SectorNotPreparedForWriteOperation)
			return
		}
		if dst%256 != 0 {
			d.status(DstAddrError)
			return
		}
		for i := 0; i < n; i++ {
			d.flash[int(dst)+i] = d.ram[src+uint32(i)]
		}
		d.status(CmdSuccess)
	case "M":
		d.status(CmdSuccess)
	default:
		d.status(InvalidCommand)
	}
}

func (d *simDevice) sendUUBlock() {
	block := d.pendingUU[:min(len(d.pendingUU), uuencode.LineBytes*uuencode.BlockLines)]
	for _, l := range uuencode.Encode(block) {
		d.send("%s\r\n", l)
	}
	sum := uuencode.Checksum(block)
	if d.corruptReadSum > 0 {
		d.corruptReadSum--
		sum++
	}
	d.send("%d\r\n", sum)
}

func (d *simDevice) recvUU(line string) {
	if d.echo {
		d.send("%s\r\n", line)
	}
	if d.xferLines == uuencode.BlockLines || len(d.xferBuf) == d.xferLen {
		// checksum line for the block just received
		start := (len(d.xferBuf) - 1) / (uuencode.LineBytes * uuencode.BlockLines) * (uuencode.LineBytes * uuencode.BlockLines)
		want := uuencode.Checksum(d.xferBuf[start:])
		got, err := strconv.ParseUint(line, 10, 32)
		if err != nil || uint32(got) != want {
			d.xferBuf = d.xferBuf[:start]
			d.xferLines = 0
			d.send("RESEND\r\n")
			return
		}
		d.send("OK\r\n")
		d.xferLines = 0
		if len(d.xferBuf) == d.xferLen {
			for i, b := range d.xferBuf {
				d.ram[d.xferAddr+uint32(i)] = b
			}
			d.state = simReady
		}
		return
	}
	data, err := uuencode.DecodeLine([]byte(line))
	if err != nil {
		return
	}
	d.xferBuf = append(d.xferBuf, data...)
	d.xferLines++
}

// silentTransport never answers and records what is written to it.
type silentTransport struct {
	mu      sync.Mutex
	written bytes.Buffer
	done    chan struct{}
	once    sync.Once
}

func newSilentTransport() *silentTransport {
	return &silentTransport{done: make(chan struct{})}
}

func (t *silentTransport) Read(p []byte) (int, error) {
	<-t.done
	return 0, io.EOF
}

func (t *silentTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written.Write(p)
}

func (t *silentTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

func (t *silentTransport) isClosed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *silentTransport) probes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Count(t.written.Bytes(), []byte{ProbeChar})
}

// scriptTransport replays canned output and ignores input.
type scriptTransport struct {
	silentTransport
	out chan []byte
}

func newScriptTransport(chunks ...string) *scriptTransport {
	t := &scriptTransport{silentTransport: silentTransport{done: make(chan struct{})}, out: make(chan []byte, len(chunks))}
	for _, c := range chunks {
		t.out <- []byte(c)
	}
	return t
}

func (t *scriptTransport) Read(p []byte) (int, error) {
	select {
	case b := <-t.out:
		return copy(p, b), nil
	case <-t.done:
		return 0, io.EOF
	}
}
