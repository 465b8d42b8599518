package bootshell

import "encoding/binary"

// The boot record is the single source of truth for "is there a validated,
// staged update waiting to be activated". It is read at update-command entry
// and rewritten whole on every mutation, never patched in place.

const (
	recordMagic   = 0x42524543 // "CERB" little-endian on the wire
	recordVersion = 1

	// digestCap is the size reserved for a digest: large enough for the
	// biggest supported kind (SHA-256).
	digestCap = 32

	appMetaSize = 1 + 1 + 1 + 4 + digestCap

	// RecordSize is the encoded size of a boot record.
	RecordSize = 4 + 1 + 1 + 2*appMetaSize
)

// AppMeta describes one application image tracked by the boot record.
type AppMeta struct {
	Checksum ChecksumKind
	Type     AppType
	Length   uint32
	Digest   []byte
}

// BootRecord persists across resets and describes the staged and active
// application images.
type BootRecord struct {
	Active      AppMeta
	New         AppMeta
	NewAppReady bool
}

func (m *AppMeta) encode(buf []byte) {
	buf[0] = byte(m.Checksum)
	buf[1] = byte(m.Type)
	buf[2] = byte(len(m.Digest))
	binary.LittleEndian.PutUint32(buf[3:], m.Length)
	copy(buf[7:7+digestCap], m.Digest)
}

func decodeAppMeta(buf []byte) (AppMeta, error) {
	n := int(buf[2])
	if n > digestCap {
		return AppMeta{}, ErrRecordLoad
	}
	m := AppMeta{
		Checksum: ChecksumKind(buf[0]),
		Type:     AppType(buf[1]),
		Length:   binary.LittleEndian.Uint32(buf[3:]),
	}
	if n > 0 {
		m.Digest = append([]byte(nil), buf[7:7+n]...)
	}
	return m, nil
}

// Encode serializes the record into its fixed binary layout.
func (r *BootRecord) Encode() []byte {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(buf, recordMagic)
	buf[4] = recordVersion
	if r.NewAppReady {
		buf[5] = 1
	}
	r.Active.encode(buf[6 : 6+appMetaSize])
	r.New.encode(buf[6+appMetaSize:])
	return buf
}

// DecodeBootRecord parses a persisted record, rejecting unknown layouts.
func DecodeBootRecord(data []byte) (*BootRecord, error) {
	if len(data) != RecordSize ||
		binary.LittleEndian.Uint32(data) != recordMagic ||
		data[4] != recordVersion {
		return nil, ErrRecordLoad
	}
	active, err := decodeAppMeta(data[6 : 6+appMetaSize])
	if err != nil {
		return nil, err
	}
	newApp, err := decodeAppMeta(data[6+appMetaSize:])
	if err != nil {
		return nil, err
	}
	return &BootRecord{
		Active:      active,
		New:         newApp,
		NewAppReady: data[5] == 1,
	}, nil
}

// loadBootRecord reads the persisted record, returning the zero record on
// first boot (empty store).
func loadBootRecord(store RecordStore) (*BootRecord, error) {
	data, err := store.Load()
	if err != nil {
		pkgLog.Warningf("boot record load failed: %v", err)
		return nil, ErrRecordLoad
	}
	if len(data) == 0 {
		return &BootRecord{}, nil
	}
	return DecodeBootRecord(data)
}

// storeBootRecord persists the full record. The store's contract is
// whole-record-or-nothing.
func storeBootRecord(store RecordStore, r *BootRecord) error {
	if err := store.Store(r.Encode()); err != nil {
		pkgLog.Warningf("boot record store failed: %v", err)
		return ErrRecordStore
	}
	return nil
}
