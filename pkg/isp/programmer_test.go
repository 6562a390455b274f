// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
)

func collect(ch <-chan Event) []Event {
	var evs []Event
	for ev := range ch {
		evs = append(evs, ev)
	}
	return evs
}

func TestProgrammer_TimeoutOnThirdChunk(t *testing.T) {
	d := &stubDialect{chunk: 4, read: 4, failChunk: 3}
	s, _ := newStubSession(d)
	defer s.Close()

	src := bytes.NewReader([]byte("0123456789"))
	evs := collect(NewProgrammer(s, 0x100, 10, WithErase(false)).Program(context.Background(), src))

	kinds := make([]string, len(evs))
	for i, ev := range evs {
		kinds[i] = ev.Kind.String()
		if ev.Kind == EventChunk {
			kinds[i] = fmt.Sprintf("chunk(%d)", ev.Bytes)
		}
	}
	want := []string{"start", "chunk(4)", "chunk(4)", "error"}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}

	last := evs[len(evs)-1]
	if !errors.Is(last.Err, ErrTimeout) || !errors.Is(last.Err, ErrTransferAborted) {
		t.Errorf("error = %v, want a transfer aborted by a timeout", last.Err)
	}
	var te *TransferError
	if !errors.As(last.Err, &te) || te.Address != 0x108 || te.Done != 8 {
		t.Errorf("transfer error = %+v", te)
	}
}

func TestProgrammer_EventInvariants(t *testing.T) {
	for _, size := range []int{0, 1, 4, 7, 8, 10, 33} {
		for _, failAt := range []int{0, 1, 2, 5} {
			t.Run(fmt.Sprintf("L=%d,fail=%d", size, failAt), func(t *testing.T) {
				d := &stubDialect{chunk: 4, read: 4, failChunk: failAt}
				s, _ := newStubSession(d)
				defer s.Close()

				src := bytes.NewReader(make([]byte, size))
				evs := collect(NewProgrammer(s, 0, size).Program(context.Background(), src))

				starts, terminals, sum := 0, 0, 0
				var terminal EventKind
				for i, ev := range evs {
					switch ev.Kind {
					case EventStarted:
						starts++
						if i != 0 {
							t.Errorf("start at position %d", i)
						}
					case EventChunk:
						sum += ev.Bytes
					default:
						terminals++
						terminal = ev.Kind
						if i != len(evs)-1 {
							t.Errorf("terminal event at %d of %d", i, len(evs))
						}
					}
				}
				if starts != 1 || terminals != 1 {
					t.Fatalf("starts = %d terminals = %d", starts, terminals)
				}
				switch terminal {
				case EventFinished:
					if sum != size {
						t.Errorf("chunk sum = %d, want %d", sum, size)
					}
				case EventFailed:
					if sum >= size {
						t.Errorf("failed with chunk sum %d >= %d", sum, size)
					}
				}

				chunks := (size + 3) / 4
				wantFail := failAt > 0 && failAt <= chunks
				if (terminal == EventFailed) != wantFail {
					t.Errorf("terminal = %v, want failure %v", terminal, wantFail)
				}
			})
		}
	}
}

func TestProgrammer_AscendingContiguousChunks(t *testing.T) {
	d := &stubDialect{chunk: 4, read: 4}
	s, _ := newStubSession(d)
	defer s.Close()

	data := []byte("abcdefghijklmn")
	if err := NewProgrammer(s, 0x2000, len(data)).Run(context.Background(), bytes.NewReader(data), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	next := uint32(0x2000)
	var got []byte
	for _, c := range d.chunks {
		if c.Address != next {
			t.Errorf("chunk at 0x%X, want 0x%X", c.Address, next)
		}
		next = c.End()
		got = append(got, c.Data...)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("programmed %q, want %q", got, data)
	}
	if len(d.erased) != 1 || d.erased[0] != (Range{Address: 0x2000, Length: len(data)}) {
		t.Errorf("erased = %v", d.erased)
	}
}

func TestProgrammer_UnlockFailure(t *testing.T) {
	d := &stubDialect{chunk: 4, read: 4, unlockErr: &CommandError{Command: "U 23130", Code: InvalidCode, Name: "INVALID_CODE"}}
	s, _ := newStubSession(d)
	defer s.Close()

	var kinds []EventKind
	err := NewProgrammer(s, 0, 8).Run(context.Background(), bytes.NewReader(make([]byte, 8)), func(ev Event) {
		kinds = append(kinds, ev.Kind)
	})
	if err == nil {
		t.Fatal("expected failure")
	}
	if len(kinds) != 2 || kinds[0] != EventStarted || kinds[1] != EventFailed {
		t.Errorf("events = %v", kinds)
	}
	if len(d.chunks) != 0 {
		t.Errorf("%d chunks written after failed unlock", len(d.chunks))
	}
}

func TestProgrammer_ShortSource(t *testing.T) {
	d := &stubDialect{chunk: 4, read: 4}
	s, _ := newStubSession(d)
	defer s.Close()

	err := NewProgrammer(s, 0, 10).Run(context.Background(), bytes.NewReader(make([]byte, 6)), nil)
	if !errors.Is(err, ErrTransferAborted) {
		t.Fatalf("err = %v, want ErrTransferAborted", err)
	}
	if len(d.chunks) != 1 {
		t.Errorf("chunks = %d, want 1", len(d.chunks))
	}
}

func TestProgrammer_Cancelled(t *testing.T) {
	d := &stubDialect{chunk: 4, read: 4}
	s, _ := newStubSession(d)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewProgrammer(s, 0, 8).Run(ctx, bytes.NewReader(make([]byte, 8)), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
