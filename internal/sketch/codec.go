package sketch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// wireSignature is the on-disk JSON layout of one signature.
type wireSignature struct {
	Class        string       `json:"class,omitempty"`
	Email        string       `json:"email,omitempty"`
	HashFunction string       `json:"hash_function,omitempty"`
	Name         string       `json:"name,omitempty"`
	Filename     string       `json:"filename,omitempty"`
	License      string       `json:"license,omitempty"`
	Signatures   []wireSketch `json:"signatures"`
	Version      float64      `json:"version,omitempty"`
}

type wireSketch struct {
	KSize      uint32   `json:"ksize"`
	Num        uint32   `json:"num"`
	Seed       uint64   `json:"seed"`
	MaxHash    uint64   `json:"max_hash"`
	Mins       []uint64 `json:"mins"`
	Abundances []uint64 `json:"abundances,omitempty"`
	Molecule   string   `json:"molecule,omitempty"`
	MD5Sum     string   `json:"md5sum,omitempty"`
}

// ReadSignatures decodes every signature in r. The input is either a JSON
// array of signatures or a single signature object, optionally gzipped.
func ReadSignatures(r io.Reader) ([]*Signature, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		defer zr.Close()
		br = bufio.NewReader(zr)
	}

	raw, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	var wire []wireSignature
	if raw[0] == '{' {
		var one wireSignature
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		wire = []wireSignature{one}
	} else if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := make([]*Signature, 0, len(wire))
	for _, ws := range wire {
		sig := &Signature{Name: ws.Name, Filename: ws.Filename, License: ws.License}
		for _, wk := range ws.Signatures {
			sk, err := New(wk.KSize, wk.MaxHash, wk.Mins)
			if err != nil {
				return nil, err
			}
			sk.Seed = wk.Seed
			sk.Molecule = wk.Molecule
			sig.Sketches = append(sig.Sketches, sk)
		}
		out = append(out, sig)
	}
	return out, nil
}

// FirstSignature decodes data and keeps only the first signature.
func FirstSignature(data []byte) (*Signature, error) {
	sigs, err := ReadSignatures(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(sigs) == 0 {
		return nil, fmt.Errorf("%w: no signature found", ErrMalformed)
	}
	return sigs[0], nil
}

// LoadFile reads all signatures stored at path.
func LoadFile(path string) ([]*Signature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open signature file %s: %w", path, err)
	}
	defer f.Close()

	sigs, err := ReadSignatures(f)
	if err != nil {
		return nil, fmt.Errorf("cannot read signature file %s: %w", path, err)
	}
	return sigs, nil
}

// SelectFromFile loads path and returns the first sketch compatible with tpl,
// scanning every signature in the file.
func SelectFromFile(path string, tpl Template) (*Signature, *Sketch, error) {
	sigs, err := LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if len(sigs) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", path, ErrUnsupportedSignature)
	}
	var firstErr error
	for _, sig := range sigs {
		sk, err := sig.Select(tpl)
		if err == nil {
			return sig, sk, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, nil, fmt.Errorf("%s: %w", path, firstErr)
}

// WriteSignatures is the writer half of the codec: it encodes sigs as a JSON
// array in the sourmash layout ReadSignatures accepts, gzipped when compress
// is set.
func WriteSignatures(w io.Writer, sigs []*Signature, compress bool) error {
	wire := make([]wireSignature, 0, len(sigs))
	for _, sig := range sigs {
		ws := wireSignature{
			Class:        "sourmash_signature",
			HashFunction: "0.murmur64",
			Name:         sig.Name,
			Filename:     sig.Filename,
			License:      sig.License,
			Version:      0.4,
		}
		for _, sk := range sig.Sketches {
			ws.Signatures = append(ws.Signatures, wireSketch{
				KSize:    sk.KSize,
				Seed:     sk.Seed,
				MaxHash:  sk.MaxHash,
				Mins:     sk.mins,
				Molecule: sk.Molecule,
			})
		}
		wire = append(wire, ws)
	}

	if !compress {
		return json.NewEncoder(w).Encode(wire)
	}
	zw := gzip.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(wire); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

// SaveFile writes sigs to path with WriteSignatures. The result can be listed
// in a siglist or sent as a request body as-is.
func SaveFile(path string, sigs []*Signature, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create signature file %s: %w", path, err)
	}
	if err := WriteSignatures(f, sigs, compress); err != nil {
		_ = f.Close()
		return fmt.Errorf("cannot write signature file %s: %w", path, err)
	}
	return f.Close()
}
