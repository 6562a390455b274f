// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package image stores device memory captures as self-describing CBOR
// documents and prints them as address-labelled hex dumps.
package image

import (
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Image is a contiguous block of device memory and where it came from.
type Image struct {
	Address  uint32    `cbor:"1,keyasint"`
	Length   int       `cbor:"2,keyasint"`
	PartID   uint32    `cbor:"3,keyasint,omitempty"`
	Captured time.Time `cbor:"4,keyasint"`
	Data     []byte    `cbor:"5,keyasint"`
	CRC      uint16    `cbor:"6,keyasint"`
}

// ErrCorrupt is returned for images whose length or CRC do not match the data.
var ErrCorrupt = errors.New("corrupt image")

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
}

// New builds an image of data captured at address now.
func New(address uint32, data []byte, partID uint32) *Image {
	return &Image{
		Address:  address,
		Length:   len(data),
		PartID:   partID,
		Captured: time.Now().UTC(),
		Data:     data,
		CRC:      CalculateCRC(data),
	}
}

// End returns the first address after the image.
func (img *Image) End() uint32 {
	return img.Address + uint32(img.Length)
}

// Validate checks the declared length and CRC against the data.
func (img *Image) Validate() error {
	if img.Length != len(img.Data) {
		return errors.Wrapf(ErrCorrupt, "declared length %d, data is %d bytes", img.Length, len(img.Data))
	}
	if crc := CalculateCRC(img.Data); crc != img.CRC {
		return errors.Wrapf(ErrCorrupt, "CRC 0x%04X, data hashes to 0x%04X", img.CRC, crc)
	}
	return nil
}

// Marshal encodes img as CBOR.
func Marshal(img *Image) ([]byte, error) {
	b, err := encMode.Marshal(img)
	if err != nil {
		return nil, errors.Wrap(err, "encode image")
	}
	return b, nil
}

// Unmarshal decodes and validates a CBOR image.
func Unmarshal(b []byte) (*Image, error) {
	if len(b) == 0 {
		return nil, errors.New("empty image")
	}
	var img Image
	if err := cbor.Unmarshal(b, &img); err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return &img, nil
}

// Write encodes img to w.
func Write(w io.Writer, img *Image) error {
	b, err := Marshal(img)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return errors.Wrap(err, "write image")
}

// Read decodes one image from r.
func Read(r io.Reader) (*Image, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read image")
	}
	return Unmarshal(b)
}

// Sniff reports whether b holds a valid image rather than a raw binary.
func Sniff(b []byte) (*Image, bool) {
	img, err := Unmarshal(b)
	if err != nil {
		return nil, false
	}
	return img, true
}
