// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Thermoquad/isplink/pkg/uuencode"
	"github.com/pkg/errors"
)

// Encoding selects how the LPC dialect moves binary data.
type Encoding int

const (
	// Binary sends data as raw bytes (LPC8xx, LPC11Uxx and later)
	Binary Encoding = iota
	// UUEncode sends 45-byte UU lines with a checksum every 20 lines (LPC17xx, LPC2xxx)
	UUEncode
)

func (e Encoding) String() string {
	switch e {
	case Binary:
		return "binary"
	case UUEncode:
		return "uuencode"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// ParseEncoding parses "binary" or "uuencode".
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "binary", "bin":
		return Binary, nil
	case "uuencode", "uu":
		return UUEncode, nil
	}
	return 0, errors.Errorf("unknown encoding %q (use binary or uuencode)", s)
}

// LPC return codes
const (
	CmdSuccess                         = 0
	InvalidCommand                     = 1
	SrcAddrError                       = 2
	DstAddrError                       = 3
	SrcAddrNotMapped                   = 4
	DstAddrNotMapped                   = 5
	CountError                         = 6
	InvalidSector                      = 7
	SectorNotBlank                     = 8
	SectorNotPreparedForWriteOperation = 9
	CompareError                       = 10
	Busy                               = 11
	ParamError                         = 12
	AddrError                          = 13
	AddrNotMapped                      = 14
	CmdLocked                          = 15
	InvalidCode                        = 16
	InvalidBaudRate                    = 17
	InvalidStopBit                     = 18
	CodeReadProtectionEnabled          = 19
)

var lpcStatusNames = map[int]string{
	CmdSuccess:                         "CMD_SUCCESS",
	InvalidCommand:                     "INVALID_COMMAND",
	SrcAddrError:                       "SRC_ADDR_ERROR",
	DstAddrError:                       "DST_ADDR_ERROR",
	SrcAddrNotMapped:                   "SRC_ADDR_NOT_MAPPED",
	DstAddrNotMapped:                   "DST_ADDR_NOT_MAPPED",
	CountError:                         "COUNT_ERROR",
	InvalidSector:                      "INVALID_SECTOR",
	SectorNotBlank:                     "SECTOR_NOT_BLANK",
	SectorNotPreparedForWriteOperation: "SECTOR_NOT_PREPARED_FOR_WRITE_OPERATION",
	CompareError:                       "COMPARE_ERROR",
	Busy:                               "BUSY",
	ParamError:                         "PARAM_ERROR",
	AddrError:                          "ADDR_ERROR",
	AddrNotMapped:                      "ADDR_NOT_MAPPED",
	CmdLocked:                          "CMD_LOCKED",
	InvalidCode:                        "INVALID_CODE",
	InvalidBaudRate:                    "INVALID_BAUD_RATE",
	InvalidStopBit:                     "INVALID_STOP_BIT",
	CodeReadProtectionEnabled:          "CODE_READ_PROTECTION_ENABLED",
}

// StatusName returns the LPC name of a return code, or "" if unknown.
func StatusName(code int) string {
	return lpcStatusNames[code]
}

// UnlockCode is the argument of the U command
const UnlockCode = 23130

// validCopySizes are the byte counts the C command accepts
var validCopySizes = []int{256, 512, 1024, 4096}

// LPC is the NXP LPC UART ISP command vocabulary.
type LPC struct {
	Encoding Encoding

	// RAMAddress is where chunks are staged before being copied to flash.
	// It must leave room for ChunkSize bytes above the bootloader's RAM.
	RAMAddress uint32

	// ChunkSize is the copy block size: 256, 512, 1024 or 4096.
	ChunkSize int

	// ReadSize is the largest R command length (a multiple of 4).
	ReadSize int

	Sectors SectorMap

	// Verify compares flash against the staged RAM after each copy.
	Verify bool

	// Timeout overrides the session command timeout when non-zero.
	Timeout time.Duration

	// EraseTimeout bounds P/E sequences; sector erase is slow.
	EraseTimeout time.Duration
}

// NewLPC returns the LPC dialect configured for an LPC17xx part.
func NewLPC() *LPC {
	return &LPC{
		Encoding:     Binary,
		RAMAddress:   0x10000200,
		ChunkSize:    1024,
		ReadSize:     1024,
		Sectors:      LPC17xxSectors(),
		Verify:       false,
		EraseTimeout: 5 * time.Second,
	}
}

// Name implements Dialect.
func (l *LPC) Name() string {
	return "lpc-" + l.Encoding.String()
}

// MaxChunkSize implements Dialect.
func (l *LPC) MaxChunkSize() int {
	return l.ChunkSize
}

// MaxReadSize implements Dialect.
func (l *LPC) MaxReadSize() int {
	return l.ReadSize
}

// WriteAlignment implements Dialect. C requires a 256-byte aligned destination.
func (l *LPC) WriteAlignment() uint32 {
	return 256
}

// ReadAlignment implements Dialect. R requires a word-aligned address.
func (l *LPC) ReadAlignment() uint32 {
	return 4
}

// CommitSize implements CommitSizer. Chunks are padded to a C block, so only
// block sizes keep consecutive commits from overlapping.
func (l *LPC) CommitSize(n int) int {
	best := validCopySizes[0]
	for _, s := range validCopySizes {
		if s <= n {
			best = s
		}
	}
	return best
}

func (l *LPC) timeout(tx *Tx) time.Duration {
	if l.Timeout > 0 {
		return l.Timeout
	}
	return tx.Timeout()
}

// command runs request and turns a non-zero return code into a CommandError.
func (l *LPC) command(tx *Tx, request string, timeout time.Duration) error {
	code, err := tx.Status(request, timeout)
	if err != nil {
		return errors.Wrapf(err, "command %q", request)
	}
	if code != CmdSuccess {
		return &CommandError{Command: request, Code: code, Name: StatusName(code)}
	}
	return nil
}

// SetEcho implements Dialect.
func (l *LPC) SetEcho(tx *Tx, on bool) error {
	arg := 0
	if on {
		arg = 1
	}
	if err := l.command(tx, fmt.Sprintf("A %d", arg), l.timeout(tx)); err != nil {
		return err
	}
	tx.SetEchoState(on)
	return nil
}

// Unlock implements Dialect.
func (l *LPC) Unlock(tx *Tx) error {
	return l.command(tx, fmt.Sprintf("U %d", UnlockCode), l.timeout(tx))
}

// ReadPartID implements Dialect.
func (l *LPC) ReadPartID(tx *Tx) (uint32, error) {
	if err := l.command(tx, "J", l.timeout(tx)); err != nil {
		return 0, err
	}
	m, err := tx.Assert(Line(), l.timeout(tx))
	if err != nil {
		return 0, errors.Wrap(err, "part identification")
	}
	id, err := strconv.ParseUint(string(m.Capture), 10, 32)
	if err != nil {
		return 0, &ProtocolError{Operation: "J", Response: string(m.Capture), Reason: "part identification is not a number"}
	}
	return uint32(id), nil
}

// ReadBootcodeVersion implements Dialect. The device sends byte 0 (minor)
// first, then byte 1 (major), one per line.
func (l *LPC) ReadBootcodeVersion(tx *Tx) (BootcodeVersion, error) {
	if err := l.command(tx, "K", l.timeout(tx)); err != nil {
		return BootcodeVersion{}, err
	}
	var fields [2]int
	for i := range fields {
		m, err := tx.Assert(Line(), l.timeout(tx))
		if err != nil {
			return BootcodeVersion{}, errors.Wrap(err, "bootcode version")
		}
		v, err := strconv.Atoi(string(m.Capture))
		if err != nil {
			return BootcodeVersion{}, &ProtocolError{Operation: "K", Response: string(m.Capture), Reason: "version is not a number"}
		}
		fields[i] = v
	}
	return BootcodeVersion{Major: fields[1], Minor: fields[0]}, nil
}

// ReadSerialNumber returns the four words of the device serial number.
func (l *LPC) ReadSerialNumber(tx *Tx) ([4]uint32, error) {
	var serial [4]uint32
	if err := l.command(tx, "N", l.timeout(tx)); err != nil {
		return serial, err
	}
	for i := range serial {
		m, err := tx.Assert(Line(), l.timeout(tx))
		if err != nil {
			return serial, errors.Wrap(err, "serial number")
		}
		v, err := strconv.ParseUint(string(m.Capture), 10, 32)
		if err != nil {
			return serial, &ProtocolError{Operation: "N", Response: string(m.Capture), Reason: "serial word is not a number"}
		}
		serial[i] = uint32(v)
	}
	return serial, nil
}

// ReadMemory implements Dialect. Lengths are rounded up to a word for the
// device and trimmed on return.
func (l *LPC) ReadMemory(tx *Tx, address uint32, length int) ([]byte, error) {
	if length <= 0 {
		return []byte{}, nil
	}
	n := roundUp(length, 4)
	request := fmt.Sprintf("R %d %d", address, n)
	if err := l.command(tx, request, l.timeout(tx)); err != nil {
		return nil, err
	}

	var data []byte
	var err error
	switch l.Encoding {
	case UUEncode:
		data, err = l.receiveUU(tx, n)
	default:
		var m Match
		m, err = tx.Assert(Bytes(n), l.dataTimeout(tx, n))
		data = m.Capture
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read data for %q", request)
	}
	return data[:length], nil
}

// Erase implements Dialect.
func (l *LPC) Erase(tx *Tx, address uint32, length int) error {
	first, last, err := l.Sectors.Span(address, length)
	if err != nil {
		return err
	}
	if err := l.command(tx, fmt.Sprintf("P %d %d", first, last), l.timeout(tx)); err != nil {
		return err
	}
	return l.command(tx, fmt.Sprintf("E %d %d", first, last), l.EraseTimeout)
}

// WriteChunk implements Dialect: stage the chunk in RAM, verify the staged
// copy, then prepare and copy it into flash.
func (l *LPC) WriteChunk(tx *Tx, c Chunk) error {
	if len(c.Data) == 0 {
		return nil
	}
	if len(c.Data) > l.ChunkSize {
		return errors.Wrapf(ErrInvalidRange, "chunk of %d bytes exceeds %d", len(c.Data), l.ChunkSize)
	}
	block, err := copySize(len(c.Data))
	if err != nil {
		return err
	}
	data := make([]byte, block)
	copy(data, c.Data)
	for i := len(c.Data); i < block; i++ {
		data[i] = 0xFF
	}

	// Stage
	if err := l.command(tx, fmt.Sprintf("W %d %d", l.RAMAddress, block), l.timeout(tx)); err != nil {
		return err
	}
	switch l.Encoding {
	case UUEncode:
		// the per-block checksum acknowledgement verifies the staged copy
		if err := l.sendUU(tx, data); err != nil {
			return errors.Wrap(err, "stage chunk")
		}
	default:
		if err := tx.WriteBytes(data); err != nil {
			return errors.Wrap(err, "stage chunk")
		}
	}

	// Commit
	first, last, err := l.Sectors.Span(c.Address, block)
	if err != nil {
		return err
	}
	if err := l.command(tx, fmt.Sprintf("P %d %d", first, last), l.timeout(tx)); err != nil {
		return err
	}
	if err := l.command(tx, fmt.Sprintf("C %d %d %d", c.Address, l.RAMAddress, block), l.dataTimeout(tx, block)); err != nil {
		return err
	}

	if !l.Verify {
		return nil
	}
	// The first 64 bytes of sector 0 are remapped to the boot ROM vectors
	// while the bootloader runs and never compare equal.
	dst, src, n := c.Address, l.RAMAddress, block
	if dst < 64 {
		skip := 64 - dst
		dst, src, n = 64, src+skip, n-int(skip)
	}
	return l.command(tx, fmt.Sprintf("M %d %d %d", dst, src, n), l.timeout(tx))
}

// dataTimeout scales the command timeout with the payload size
func (l *LPC) dataTimeout(tx *Tx, n int) time.Duration {
	return l.timeout(tx) + time.Duration(n)*100*time.Microsecond
}

// receiveUU reads n bytes of UU lines, acknowledging each checksummed block.
func (l *LPC) receiveUU(tx *Tx, n int) ([]byte, error) {
	const maxResends = 3
	data := make([]byte, 0, n)
	resends := 0
	for len(data) < n {
		var block []byte
		for lines := 0; lines < uuencode.BlockLines && len(data)+len(block) < n; lines++ {
			m, err := tx.Assert(Line(), l.timeout(tx))
			if err != nil {
				return nil, err
			}
			dec, err := uuencode.DecodeLine(m.Capture)
			if err != nil {
				return nil, &ProtocolError{Operation: "R", Response: string(m.Capture), Reason: err.Error()}
			}
			block = append(block, dec...)
		}
		m, err := tx.Assert(Line(), l.timeout(tx))
		if err != nil {
			return nil, err
		}
		sum, err := strconv.ParseUint(string(m.Capture), 10, 32)
		if err != nil {
			return nil, &ProtocolError{Operation: "R", Response: string(m.Capture), Reason: "checksum is not a number"}
		}
		if uint32(sum) != uuencode.Checksum(block) {
			resends++
			if resends > maxResends {
				return nil, &ProtocolError{Operation: "R", Response: string(m.Capture), Reason: "checksum mismatch"}
			}
			tx.Logger().Warn("checksum mismatch, requesting resend", "got", sum, "want", uuencode.Checksum(block))
			if err := writeEchoed(tx, "RESEND", l.timeout(tx)); err != nil {
				return nil, err
			}
			continue
		}
		if err := writeEchoed(tx, OKToken, l.timeout(tx)); err != nil {
			return nil, err
		}
		data = append(data, block...)
	}
	return data, nil
}

// sendUU writes data as UU lines and waits for the device to accept each
// checksummed block.
func (l *LPC) sendUU(tx *Tx, data []byte) error {
	const maxResends = 3
	blockBytes := uuencode.LineBytes * uuencode.BlockLines
	for off := 0; off < len(data); off += blockBytes {
		end := off + blockBytes
		if end > len(data) {
			end = len(data)
		}
		block := data[off:end]

		for attempt := 0; ; attempt++ {
			for _, line := range uuencode.Encode(block) {
				if err := writeEchoed(tx, line, l.timeout(tx)); err != nil {
					return err
				}
			}
			sum := strconv.FormatUint(uint64(uuencode.Checksum(block)), 10)
			if err := writeEchoed(tx, sum, l.timeout(tx)); err != nil {
				return err
			}
			m, err := tx.Assert(Line(), l.timeout(tx))
			if err != nil {
				return err
			}
			reply := string(m.Capture)
			if reply == OKToken {
				break
			}
			if reply != "RESEND" {
				return &ProtocolError{Operation: "W", Response: reply, Reason: "expected OK or RESEND"}
			}
			if attempt >= maxResends {
				return &ProtocolError{Operation: "W", Response: reply, Reason: "too many resends"}
			}
		}
	}
	return nil
}

// writeEchoed writes a data line and consumes its echo when echo is on
func writeEchoed(tx *Tx, line string, timeout time.Duration) error {
	if err := tx.WriteLine(line); err != nil {
		return err
	}
	if !tx.Echo() {
		return nil
	}
	_, err := tx.Assert(Literal(line+LineTerminator), timeout)
	return err
}

// copySize returns the smallest C block that holds n bytes
func copySize(n int) (int, error) {
	for _, s := range validCopySizes {
		if n <= s {
			return s, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidRange, "chunk of %d bytes exceeds the largest copy block", n)
}

func roundUp(n, m int) int {
	return (n + m - 1) / m * m
}
