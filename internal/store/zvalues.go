package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cwbudde/msetgen/internal/engine"
)

// zvalues.bin layout, all little endian:
//
//	magic "MSZ1"
//	uint32 limb count, width, height
//	re limbs, then im limbs, point by point

var zValuesMagic = [4]byte{'M', 'S', 'Z', '1'}

// ErrCorruptZValues is returned for z state files that cannot be decoded.
var ErrCorruptZValues = errors.New("corrupt z values file")

// EncodeZValues serializes z state.
func EncodeZValues(zv *engine.ZValues) ([]byte, error) {
	n := zv.LimbCount * zv.Width * zv.Height
	if len(zv.Re) != n || len(zv.Im) != n {
		return nil, fmt.Errorf("z values hold %d/%d limbs, need %d", len(zv.Re), len(zv.Im), n)
	}

	var buf bytes.Buffer
	buf.Grow(16 + 8*n)
	buf.Write(zValuesMagic[:])
	header := []uint32{uint32(zv.LimbCount), uint32(zv.Width), uint32(zv.Height)}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, zv.Re); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, zv.Im); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeZValues parses the output of EncodeZValues.
func DecodeZValues(data []byte) (*engine.ZValues, error) {
	if len(data) < 16 || !bytes.Equal(data[:4], zValuesMagic[:]) {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptZValues)
	}

	limbs := int(binary.LittleEndian.Uint32(data[4:]))
	width := int(binary.LittleEndian.Uint32(data[8:]))
	height := int(binary.LittleEndian.Uint32(data[12:]))
	n := limbs * width * height
	if limbs < 1 || width < 1 || height < 1 || len(data) != 16+8*n {
		return nil, fmt.Errorf("%w: %d bytes for %d limbs of %dx%d points", ErrCorruptZValues, len(data), limbs, width, height)
	}

	zv := engine.NewZValues(limbs, width, height)
	r := bytes.NewReader(data[16:])
	if err := binary.Read(r, binary.LittleEndian, zv.Re); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptZValues, err)
	}
	if err := binary.Read(r, binary.LittleEndian, zv.Im); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptZValues, err)
	}
	return zv, nil
}
