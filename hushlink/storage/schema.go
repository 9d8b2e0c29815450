package storage

import (
	"errors"
	"fmt"

	"github.com/TheusHen/hushlink/hushlink/fault"
)

// Field names of the default schema.
const (
	FieldWrappedKey = "key.wrapped"
	FieldSalt       = "key.salt"

	FieldMAC     = "net.mac"
	FieldIP      = "net.ip"
	FieldSubnet  = "net.subnet"
	FieldGateway = "net.gateway"
	FieldDNS     = "net.dns"
	FieldDHCP    = "net.dhcp"

	FieldServerIP   = "server.ip"
	FieldServerPort = "server.port"
)

// Sector names of the default schema.
const (
	SectorKey     = "key"
	SectorNetwork = "network"
	SectorServer  = "server"
)

var (
	ErrUnknownField  = errors.New("storage: unknown field")
	ErrUnknownSector = errors.New("storage: unknown sector")
	ErrFieldLength   = errors.New("storage: value does not match field length")
	ErrUnset         = errors.New("storage: field not set")
)

// Field is a tagged record inside a sector.
type Field struct {
	Name   string
	Offset int
	Length int
}

// Sector groups the fields that are erased and written together.
type Sector struct {
	Name   string
	Base   int
	Fields []Field
}

// Record holds field values by name.
type Record map[string][]byte

// Schema maps field names to their location in the image.
type Schema struct {
	sectors map[string]Sector
	fields  map[string]string // field -> sector
}

// NewSchema builds a schema. Sector bases must be sector aligned and fields
// must fit in their sector.
func NewSchema(sectors ...Sector) (*Schema, error) {
	s := &Schema{
		sectors: make(map[string]Sector, len(sectors)),
		fields:  make(map[string]string),
	}
	for _, sec := range sectors {
		if sec.Base%SectorSize != 0 {
			return nil, fmt.Errorf("%w: sector %s", ErrUnaligned, sec.Name)
		}
		for _, f := range sec.Fields {
			if f.Offset < 0 || f.Length <= 0 || f.Offset+f.Length > SectorSize {
				return nil, fmt.Errorf("%w: field %s", ErrOutOfRange, f.Name)
			}
			s.fields[f.Name] = sec.Name
		}
		s.sectors[sec.Name] = sec
	}
	return s, nil
}

// DefaultSchema is the layout used by the endpoint.
func DefaultSchema() *Schema {
	s, err := NewSchema(
		Sector{Name: SectorKey, Base: 0, Fields: []Field{
			{Name: FieldWrappedKey, Offset: 0, Length: 32},
			{Name: FieldSalt, Offset: 32, Length: 16},
		}},
		Sector{Name: SectorNetwork, Base: SectorSize, Fields: []Field{
			{Name: FieldMAC, Offset: 0, Length: 6},
			{Name: FieldIP, Offset: 6, Length: 4},
			{Name: FieldSubnet, Offset: 10, Length: 4},
			{Name: FieldGateway, Offset: 14, Length: 4},
			{Name: FieldDNS, Offset: 18, Length: 4},
			{Name: FieldDHCP, Offset: 22, Length: 1},
		}},
		Sector{Name: SectorServer, Base: 2 * SectorSize, Fields: []Field{
			{Name: FieldServerIP, Offset: 0, Length: 4},
			{Name: FieldServerPort, Offset: 4, Length: 2},
		}},
	)
	if err != nil {
		panic(err)
	}
	return s
}

// DefaultImageSize covers every sector of DefaultSchema.
const DefaultImageSize = 3 * SectorSize

func (s *Schema) field(name string) (Sector, Field, error) {
	secName, ok := s.fields[name]
	if !ok {
		return Sector{}, Field{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	sec := s.sectors[secName]
	for _, f := range sec.Fields {
		if f.Name == name {
			return sec, f, nil
		}
	}
	return Sector{}, Field{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
}

// ReadField reads one field. An erased field yields ErrUnset.
func (s *Schema) ReadField(st Store, name string) ([]byte, error) {
	sec, f, err := s.field(name)
	if err != nil {
		return nil, fault.E(fault.KindStorage, "storage.ReadField", err)
	}
	b, err := st.ReadRange(sec.Base+f.Offset, f.Length)
	if err != nil {
		return nil, err
	}
	if IsErased(b) {
		return nil, fault.E(fault.KindStorage, "storage.ReadField", fmt.Errorf("%w: %s", ErrUnset, name))
	}
	return b, nil
}

// ReadSector reads every programmed field of a sector. Erased fields are left
// out of the record.
func (s *Schema) ReadSector(st Store, sector string) (Record, error) {
	sec, ok := s.sectors[sector]
	if !ok {
		return nil, fault.E(fault.KindStorage, "storage.ReadSector", fmt.Errorf("%w: %s", ErrUnknownSector, sector))
	}
	rec := make(Record, len(sec.Fields))
	for _, f := range sec.Fields {
		b, err := st.ReadRange(sec.Base+f.Offset, f.Length)
		if err != nil {
			return nil, err
		}
		if !IsErased(b) {
			rec[f.Name] = b
		}
	}
	return rec, nil
}

// WriteSector erases a sector and programs the fields in rec. Fields missing
// from rec are left erased.
func (s *Schema) WriteSector(st Store, sector string, rec Record) error {
	sec, ok := s.sectors[sector]
	if !ok {
		return fault.E(fault.KindStorage, "storage.WriteSector", fmt.Errorf("%w: %s", ErrUnknownSector, sector))
	}
	size := 0
	for _, f := range sec.Fields {
		size = max(size, f.Offset+f.Length)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = Erased
	}
	for name, v := range rec {
		secName, ok := s.fields[name]
		if !ok || secName != sector {
			return fault.E(fault.KindStorage, "storage.WriteSector", fmt.Errorf("%w: %s", ErrUnknownField, name))
		}
		_, f, _ := s.field(name)
		if len(v) != f.Length {
			return fault.E(fault.KindStorage, "storage.WriteSector", fmt.Errorf("%w: %s", ErrFieldLength, name))
		}
		copy(buf[f.Offset:], v)
	}
	return st.EraseAndWrite(sec.Base, buf)
}
