package psiparams

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/markkurossi/apsi/apsierr"
)

// Serialize encodes p field-by-field, little-endian, per spec.md §6:
// felts_per_item, hash_func_count, max_items_per_bin, table_size,
// ps_low_degree, a length-prefixed sorted query_powers list, and a
// length-prefixed SEAL parameters blob.
func (p PSIParams) Serialize() []byte {
	var buf bytes.Buffer

	writeU32 := func(v uint32) { binary.Write(&buf, binary.LittleEndian, v) }

	writeU32(uint32(p.Item.FeltsPerItem))
	writeU32(uint32(p.Table.HashFuncCount))
	writeU32(uint32(p.Table.MaxItemsPerBin))
	writeU32(uint32(p.Table.TableSize))
	writeU32(uint32(p.Query.PSLowDegree))

	powers := append([]int(nil), p.Query.QueryPowers...)
	sort.Ints(powers)
	writeU32(uint32(len(powers)))
	for _, pw := range powers {
		writeU32(uint32(pw))
	}

	var sealBuf bytes.Buffer
	writeU32Into := func(w io.Writer, v uint32) { binary.Write(w, binary.LittleEndian, v) }
	writeU32Into(&sealBuf, uint32(p.Seal.LogPolyModulusDegree))
	writeU32Into(&sealBuf, uint32(len(p.Seal.LogCoeffModulus)))
	for _, q := range p.Seal.LogCoeffModulus {
		writeU32Into(&sealBuf, uint32(q))
	}
	writeU32Into(&sealBuf, uint32(len(p.Seal.LogAuxModulus)))
	for _, q := range p.Seal.LogAuxModulus {
		writeU32Into(&sealBuf, uint32(q))
	}
	binary.Write(&sealBuf, binary.LittleEndian, p.Seal.PlaintextModulus)

	writeU32(uint32(sealBuf.Len()))
	buf.Write(sealBuf.Bytes())

	return buf.Bytes()
}

// Deserialize parses the wire format produced by Serialize. It does not
// populate MaxBundleIndexCount, which is a local policy knob, not part of
// the wire format; callers should set it after deserializing.
func Deserialize(data []byte) (PSIParams, error) {
	r := bytes.NewReader(data)

	readU32 := func() (uint32, error) {
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, fmt.Errorf("%w: truncated PSIParams: %v", apsierr.ErrProtocol, err)
		}
		return v, nil
	}

	var p PSIParams

	feltsPerItem, err := readU32()
	if err != nil {
		return PSIParams{}, err
	}
	p.Item.FeltsPerItem = int(feltsPerItem)

	hashFuncCount, err := readU32()
	if err != nil {
		return PSIParams{}, err
	}
	p.Table.HashFuncCount = int(hashFuncCount)

	maxItemsPerBin, err := readU32()
	if err != nil {
		return PSIParams{}, err
	}
	p.Table.MaxItemsPerBin = int(maxItemsPerBin)

	tableSize, err := readU32()
	if err != nil {
		return PSIParams{}, err
	}
	p.Table.TableSize = uint64(tableSize)

	psLowDegree, err := readU32()
	if err != nil {
		return PSIParams{}, err
	}
	p.Query.PSLowDegree = int(psLowDegree)

	numPowers, err := readU32()
	if err != nil {
		return PSIParams{}, err
	}
	p.Query.QueryPowers = make([]int, numPowers)
	for i := range p.Query.QueryPowers {
		v, err := readU32()
		if err != nil {
			return PSIParams{}, err
		}
		p.Query.QueryPowers[i] = int(v)
	}

	sealBlobLen, err := readU32()
	if err != nil {
		return PSIParams{}, err
	}
	sealBlob := make([]byte, sealBlobLen)
	if _, err := io.ReadFull(r, sealBlob); err != nil {
		return PSIParams{}, fmt.Errorf("%w: truncated SEAL parameters blob: %v",
			apsierr.ErrProtocol, err)
	}
	sr := bytes.NewReader(sealBlob)
	readSealU32 := func() (uint32, error) {
		var v uint32
		if err := binary.Read(sr, binary.LittleEndian, &v); err != nil {
			return 0, fmt.Errorf("%w: truncated SEAL parameters: %v", apsierr.ErrProtocol, err)
		}
		return v, nil
	}

	logN, err := readSealU32()
	if err != nil {
		return PSIParams{}, err
	}
	p.Seal.LogPolyModulusDegree = int(logN)

	numQ, err := readSealU32()
	if err != nil {
		return PSIParams{}, err
	}
	p.Seal.LogCoeffModulus = make([]int, numQ)
	for i := range p.Seal.LogCoeffModulus {
		v, err := readSealU32()
		if err != nil {
			return PSIParams{}, err
		}
		p.Seal.LogCoeffModulus[i] = int(v)
	}

	numP, err := readSealU32()
	if err != nil {
		return PSIParams{}, err
	}
	p.Seal.LogAuxModulus = make([]int, numP)
	for i := range p.Seal.LogAuxModulus {
		v, err := readSealU32()
		if err != nil {
			return PSIParams{}, err
		}
		p.Seal.LogAuxModulus[i] = int(v)
	}

	if err := binary.Read(sr, binary.LittleEndian, &p.Seal.PlaintextModulus); err != nil {
		return PSIParams{}, fmt.Errorf("%w: truncated plaintext modulus: %v",
			apsierr.ErrProtocol, err)
	}

	return p, nil
}
