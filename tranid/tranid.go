package tranid

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxGtridSize and MaxBqualSize follow the XA limits.
	MaxGtridSize = 64
	MaxBqualSize = 64

	// LocalFormatID marks ids generated for local and auto-commit transactions.
	LocalFormatID int32 = 0x4d535458
)

// PersistentTranID identifies a transaction in the store.
//
// The value is immutable and comparable, so it can be used directly as a map
// key. Two ids are equal when format id, global id and branch qualifier bytes
// are equal, no matter whether they were built from an Xid or parsed back from
// storage.
type PersistentTranID struct {
	formatID int32
	gtrid    string
	bqual    string
}

// Xid is the shape of a distributed transaction identifier handed in by a
// transaction manager.
type Xid interface {
	FormatID() int32
	GlobalTransactionID() []byte
	BranchQualifier() []byte
}

// New builds an id from its parts.
func New(formatID int32, gtrid, bqual []byte) (PersistentTranID, error) {
	if len(gtrid) == 0 {
		return PersistentTranID{}, fmt.Errorf("tranid: empty global transaction id")
	}
	if len(gtrid) > MaxGtridSize {
		return PersistentTranID{}, fmt.Errorf("tranid: global transaction id is %d bytes, max %d", len(gtrid), MaxGtridSize)
	}
	if len(bqual) > MaxBqualSize {
		return PersistentTranID{}, fmt.Errorf("tranid: branch qualifier is %d bytes, max %d", len(bqual), MaxBqualSize)
	}
	return PersistentTranID{
		formatID: formatID,
		gtrid:    string(gtrid),
		bqual:    string(bqual),
	}, nil
}

// FromXid copies the content of xid.
func FromXid(xid Xid) (PersistentTranID, error) {
	return New(xid.FormatID(), xid.GlobalTransactionID(), xid.BranchQualifier())
}

// Generate returns a fresh id for a transaction that has no external Xid.
func Generate() PersistentTranID {
	u := uuid.New()
	return PersistentTranID{
		formatID: LocalFormatID,
		gtrid:    string(u[:]),
	}
}

// Parse decodes the text form produced by String.
func Parse(s string) (PersistentTranID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return PersistentTranID{}, fmt.Errorf("tranid: %q: want 3 fields, got %d", s, len(parts))
	}
	if len(parts[0]) != 8 {
		return PersistentTranID{}, fmt.Errorf("tranid: %q: format id must be 8 hex digits", s)
	}
	fid, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return PersistentTranID{}, fmt.Errorf("tranid: %q: format id: %w", s, err)
	}
	gtrid, err := hex.DecodeString(parts[1])
	if err != nil {
		return PersistentTranID{}, fmt.Errorf("tranid: %q: global transaction id: %w", s, err)
	}
	bqual, err := hex.DecodeString(parts[2])
	if err != nil {
		return PersistentTranID{}, fmt.Errorf("tranid: %q: branch qualifier: %w", s, err)
	}
	return New(int32(uint32(fid)), gtrid, bqual)
}

func (id PersistentTranID) FormatID() int32 { return id.formatID }

func (id PersistentTranID) GlobalTransactionID() []byte { return []byte(id.gtrid) }

func (id PersistentTranID) BranchQualifier() []byte { return []byte(id.bqual) }

// IsZero reports whether id was never set.
func (id PersistentTranID) IsZero() bool {
	return id.formatID == 0 && id.gtrid == "" && id.bqual == ""
}

// IsLocal reports whether id was produced by Generate.
func (id PersistentTranID) IsLocal() bool {
	return id.formatID == LocalFormatID && id.bqual == ""
}

// String renders "<formatID>:<gtrid>:<bqual>", all lower-case hex.
func (id PersistentTranID) String() string {
	return fmt.Sprintf("%08x:%s:%s",
		uint32(id.formatID),
		hex.EncodeToString([]byte(id.gtrid)),
		hex.EncodeToString([]byte(id.bqual)))
}

func (id PersistentTranID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *PersistentTranID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
