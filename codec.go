package vnodefs

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"

	"github.com/elliotcourant/vnodefs/config"
	"github.com/elliotcourant/vnodefs/descriptor"
)

// manifestVersion is the only version this codec currently understands. It
// is written so a future format change has somewhere to branch from, the way
// manifestVersion gates notbadger's own manifest file.
const manifestVersion uint8 = 0

// descriptorWireSize is commit_id, size and offset, each a fixed-width u64.
// FileDescriptor.Kind is not written per-descriptor: the codec already knows
// which kind it is reading from its position in the layout (head/data/sma
// are each a fixed slot, stt is a homogeneous array), matching the way
// TableManifest's fields are positional rather than self-describing.
const descriptorWireSize = 8 + 8 + 8

// checksumSize is the trailing u32 that covers every preceding byte.
const checksumSize = 4

// Encode serializes m into dst and returns the number of bytes written.
// Passing a nil dst (or one too small) runs in measure-only mode and returns
// the exact length the real encode would produce, without writing anything —
// the "two-pass measure, then write" contract spec.md §4.C requires. Callers
// that already know the size (store.go) call Encode(nil) once to size their
// buffer, then Encode(buf) to fill it.
func (m *Manifest) Encode(dst []byte) (int, error) {
	n := m.encodedLen()
	if len(dst) < n {
		return n, nil
	}

	off := 0
	dst[off] = manifestVersion
	off++

	if m.Del != nil {
		dst[off] = 1
		off++
		off += encodeDescriptor(dst[off:], m.Del)
	} else {
		dst[off] = 0
		off++
	}

	off += binary.PutUvarint(dst[off:], uint64(len(m.FileSets)))
	for _, fs := range m.FileSets {
		off += encodeFileSet(dst[off:], fs)
	}

	sum := xxhash.Checksum32(dst[:off])
	binary.BigEndian.PutUint32(dst[off:off+checksumSize], sum)
	off += checksumSize

	return off, nil
}

// encodedLen computes the exact encoded size of m without allocating the
// output buffer, so Encode's measure pass stays a single cheap walk.
func (m *Manifest) encodedLen() int {
	n := 1 + 1 // version, has_del
	if m.Del != nil {
		n += descriptorWireSize
	}

	var varintBuf [binary.MaxVarintLen64]byte
	n += binary.PutUvarint(varintBuf[:], uint64(len(m.FileSets)))

	for _, fs := range m.FileSets {
		n += fileSetWireSize(fs)
	}

	n += checksumSize
	return n
}

func fileSetWireSize(fs *FileSet) int {
	// disk (5: level u8 + id u32), fid (4), three singleton descriptors, n_stt (1), stt levels.
	return 5 + 4 + 3*descriptorWireSize + 1 + fs.NStt*descriptorWireSize
}

func encodeDescriptor(dst []byte, d *descriptor.FileDescriptor) int {
	binary.BigEndian.PutUint64(dst[0:8], d.CommitId)
	binary.BigEndian.PutUint64(dst[8:16], d.Size)
	binary.BigEndian.PutUint64(dst[16:24], d.Offset)
	return descriptorWireSize
}

func encodeFileSet(dst []byte, fs *FileSet) int {
	off := 0
	dst[off] = fs.Disk.Level
	off++
	binary.BigEndian.PutUint32(dst[off:off+4], fs.Disk.Id)
	off += 4
	binary.BigEndian.PutUint32(dst[off:off+4], uint32(fs.Fid))
	off += 4

	off += encodeDescriptor(dst[off:], fs.Head)
	off += encodeDescriptor(dst[off:], fs.Data)
	off += encodeDescriptor(dst[off:], fs.Sma)

	dst[off] = byte(fs.NStt)
	off++
	for i := 0; i < fs.NStt; i++ {
		off += encodeDescriptor(dst[off:], fs.Stt[i])
	}

	return off
}

// Decode reconstructs a Manifest from b, verifying the trailing checksum
// covers exactly the bytes preceding it. Every produced descriptor starts at
// ref=1, per spec.md §3's "Lifecycle": ref is never part of the wire format.
func Decode(b []byte) (*Manifest, error) {
	if len(b) < 2+checksumSize {
		return nil, errCorrupted("manifest: buffer too small to be a valid manifest (%d bytes)", len(b))
	}

	body := b[:len(b)-checksumSize]
	wantSum := binary.BigEndian.Uint32(b[len(b)-checksumSize:])
	if gotSum := xxhash.Checksum32(body); gotSum != wantSum {
		return nil, errCorrupted("manifest: checksum mismatch, got %08x want %08x", gotSum, wantSum)
	}

	r := &byteReader{buf: body}

	version, err := r.readByte()
	if err != nil {
		return nil, errCorrupted("manifest: %v", err)
	}
	if version != manifestVersion {
		return nil, errCorrupted("manifest: unsupported version %d", version)
	}

	hasDel, err := r.readByte()
	if err != nil {
		return nil, errCorrupted("manifest: %v", err)
	}

	m := &Manifest{}
	if hasDel == 1 {
		d, err := r.readDescriptorKind(descriptor.Del)
		if err != nil {
			return nil, errCorrupted("manifest: del descriptor: %v", err)
		}
		m.Del = d
	} else if hasDel != 0 {
		return nil, errCorrupted("manifest: has_del byte not 0 or 1 (%d)", hasDel)
	}

	nSets, err := r.readUvarint()
	if err != nil {
		return nil, errCorrupted("manifest: n_sets: %v", err)
	}

	m.FileSets = make([]*FileSet, 0, nSets)
	for i := uint64(0); i < nSets; i++ {
		fs, err := r.readFileSet()
		if err != nil {
			return nil, errCorrupted("manifest: file set %d: %v", i, err)
		}
		m.FileSets = append(m.FileSets, fs)
	}

	if r.off != len(body) {
		return nil, errCorrupted("manifest: %d trailing bytes after last file set", len(body)-r.off)
	}

	if err := m.checkOrdering(); err != nil {
		return nil, err
	}

	return m, nil
}

// byteReader is a minimal cursor over an in-memory buffer. The codec never
// needs io.Reader's blocking semantics (the whole manifest is already
// resident in one []byte by the time Decode runs), so this stays simpler
// than notbadger's countingReader/bufio.Reader pairing in manifest.go.
type byteReader struct {
	buf []byte
	off int
}

func (r *byteReader) readByte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, errors.New("unexpected end of buffer")
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *byteReader) readUint32() (uint32, error) {
	if r.off+4 > len(r.buf) {
		return 0, errors.New("unexpected end of buffer reading u32")
	}
	v := binary.BigEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return v, nil
}

func (r *byteReader) readUint64() (uint64, error) {
	if r.off+8 > len(r.buf) {
		return 0, errors.New("unexpected end of buffer reading u64")
	}
	v := binary.BigEndian.Uint64(r.buf[r.off : r.off+8])
	r.off += 8
	return v, nil
}

func (r *byteReader) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		return 0, errors.New("malformed varint")
	}
	r.off += n
	return v, nil
}

func (r *byteReader) readDescriptor() (*descriptor.FileDescriptor, error) {
	commitID, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	size, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	offset, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	return &descriptor.FileDescriptor{CommitId: commitID, Size: size, Offset: offset}, nil
}

func (r *byteReader) readFileSet() (*FileSet, error) {
	fs := &FileSet{}

	level, err := r.readByte()
	if err != nil {
		return nil, err
	}
	id, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	fs.Disk = descriptor.FileId{Level: level, Id: id}

	fid, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	fs.Fid = int32(fid)

	fs.Head, err = r.readDescriptorKind(descriptor.Head)
	if err != nil {
		return nil, err
	}
	fs.Data, err = r.readDescriptorKind(descriptor.Data)
	if err != nil {
		return nil, err
	}
	fs.Sma, err = r.readDescriptorKind(descriptor.Sma)
	if err != nil {
		return nil, err
	}

	nStt, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if int(nStt) < 1 || int(nStt) > config.MaxStt {
		return nil, errors.Errorf("n_stt %d out of range [1, %d]", nStt, config.MaxStt)
	}
	fs.NStt = int(nStt)
	for i := 0; i < fs.NStt; i++ {
		d, err := r.readDescriptorKind(descriptor.Stt)
		if err != nil {
			return nil, err
		}
		fs.Stt[i] = d
	}

	return fs, nil
}

// readDescriptorKind reads one descriptor's fields and constructs it with
// the given kind and ref=1, since ref is never part of the wire format and
// Kind is implicit in the codec's positional layout (head/data/sma are
// fixed slots, stt is a homogeneous array) rather than written per-entry.
func (r *byteReader) readDescriptorKind(kind descriptor.FileKind) (*descriptor.FileDescriptor, error) {
	d, err := r.readDescriptor()
	if err != nil {
		return nil, err
	}
	return descriptor.New(kind, d.CommitId, d.Size, d.Offset), nil
}
