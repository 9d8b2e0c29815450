package netconf

import (
	"encoding/binary"

	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/storage"
)

// Book persists the last used network and server settings.
type Book struct {
	Store  storage.Store
	Schema *storage.Schema
}

func (b Book) schema() *storage.Schema {
	if b.Schema == nil {
		return storage.DefaultSchema()
	}
	return b.Schema
}

// LoadNet returns the stored network settings. Missing fields yield
// storage.ErrUnset.
func (b Book) LoadNet() (NetInfo, error) {
	var ni NetInfo
	rec, err := b.schema().ReadSector(b.Store, storage.SectorNetwork)
	if err != nil {
		return ni, err
	}
	for _, f := range []struct {
		name string
		dst  []byte
	}{
		{storage.FieldMAC, ni.MAC[:]},
		{storage.FieldIP, ni.IP[:]},
		{storage.FieldSubnet, ni.Subnet[:]},
		{storage.FieldGateway, ni.Gateway[:]},
		{storage.FieldDNS, ni.DNS[:]},
	} {
		v, ok := rec[f.name]
		if !ok {
			return NetInfo{}, fault.E(fault.KindStorage, "netconf.LoadNet", storage.ErrUnset)
		}
		copy(f.dst, v)
	}
	if v, ok := rec[storage.FieldDHCP]; ok {
		ni.DHCP = v[0] == 1
	}
	return ni, nil
}

// SaveNet replaces the stored network settings.
func (b Book) SaveNet(ni NetInfo) error {
	dhcp := byte(0)
	if ni.DHCP {
		dhcp = 1
	}
	return b.schema().WriteSector(b.Store, storage.SectorNetwork, storage.Record{
		storage.FieldMAC:     ni.MAC[:],
		storage.FieldIP:      ni.IP[:],
		storage.FieldSubnet:  ni.Subnet[:],
		storage.FieldGateway: ni.Gateway[:],
		storage.FieldDNS:     ni.DNS[:],
		storage.FieldDHCP:    {dhcp},
	})
}

// LoadServer returns the stored server address. The port is big endian.
func (b Book) LoadServer() (ServerAddr, error) {
	var sa ServerAddr
	rec, err := b.schema().ReadSector(b.Store, storage.SectorServer)
	if err != nil {
		return sa, err
	}
	ip, okIP := rec[storage.FieldServerIP]
	port, okPort := rec[storage.FieldServerPort]
	if !okIP || !okPort {
		return sa, fault.E(fault.KindStorage, "netconf.LoadServer", storage.ErrUnset)
	}
	copy(sa.IP[:], ip)
	sa.Port = int(binary.BigEndian.Uint16(port))
	if sa.Port < PortMin || sa.Port > PortMax {
		return ServerAddr{}, fault.E(fault.KindStorage, "netconf.LoadServer", ErrInvalidPort)
	}
	return sa, nil
}

// SaveServer replaces the stored server address.
func (b Book) SaveServer(sa ServerAddr) error {
	if err := sa.Validate(); err != nil {
		return err
	}
	port := binary.BigEndian.AppendUint16(nil, uint16(sa.Port))
	return b.schema().WriteSector(b.Store, storage.SectorServer, storage.Record{
		storage.FieldServerIP:   sa.IP[:],
		storage.FieldServerPort: port,
	})
}
