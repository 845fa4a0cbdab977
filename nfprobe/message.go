package nfprobe

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Netlink and nfnetlink wire constants. These are Linux kernel ABI values
// and are spelled out here so the message codec builds on every platform.
const (
	HeaderLen     = 16 // struct nlmsghdr
	nfgenLen      = 4  // struct nfgenmsg
	attrHeaderLen = 4  // struct nlattr
	errCodeLen    = 4  // leading int32 of struct nlmsgerr

	nlmFRequest = 0x1
	nlmFAck     = 0x4

	nlmsgError = 0x2

	nfnlSubsysNFTCompat = 11
	nfnlMsgCompatGet    = 0
	nfnetlinkV0         = 0

	nftaCompatName = 1
	nftaCompatRev  = 2
	nftaCompatType = 3

	familyIPv4 = 2

	errnoEPERM  = 1
	errnoENOENT = 2
)

// ErrShortMessage is returned when a reply is smaller than its layout needs.
var ErrShortMessage = errors.New("nfprobe: short netlink message")

// Header is a netlink message header. Fields are host byte order on the wire.
type Header struct {
	Len    uint32
	Type   uint16
	Flags  uint16
	Seq    uint32
	PortID uint32
}

// AppendBinary appends the encoded header to b.
func (h Header) AppendBinary(b []byte) []byte {
	b = binary.NativeEndian.AppendUint32(b, h.Len)
	b = binary.NativeEndian.AppendUint16(b, h.Type)
	b = binary.NativeEndian.AppendUint16(b, h.Flags)
	b = binary.NativeEndian.AppendUint32(b, h.Seq)
	b = binary.NativeEndian.AppendUint32(b, h.PortID)
	return b
}

// parseHeader decodes the first HeaderLen bytes of b.
func parseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrShortMessage, len(b), HeaderLen)
	}
	return Header{
		Len:    binary.NativeEndian.Uint32(b[0:4]),
		Type:   binary.NativeEndian.Uint16(b[4:6]),
		Flags:  binary.NativeEndian.Uint16(b[6:8]),
		Seq:    binary.NativeEndian.Uint32(b[8:12]),
		PortID: binary.NativeEndian.Uint32(b[12:16]),
	}, nil
}

// Attr is a netlink attribute (type-length-value record).
type Attr struct {
	Type uint16
	Data []byte
}

// Len returns the encoded length without trailing padding.
func (a Attr) Len() int { return attrHeaderLen + len(a.Data) }

// AppendBinary appends the attribute, padded to a 4-byte boundary.
func (a Attr) AppendBinary(b []byte) []byte {
	b = binary.NativeEndian.AppendUint16(b, uint16(a.Len()))
	b = binary.NativeEndian.AppendUint16(b, a.Type)
	b = append(b, a.Data...)
	for i := a.Len(); i < align(a.Len()); i++ {
		b = append(b, 0)
	}
	return b
}

func align(n int) int { return (n + 3) &^ 3 }

// StringAttr returns an attribute holding s as a NUL terminated string.
func StringAttr(typ uint16, s string) Attr {
	return Attr{Type: typ, Data: append([]byte(s), 0)}
}

// Uint32Attr returns an attribute holding v in network byte order, which is
// what nfnetlink expects for numeric payloads.
func Uint32Attr(typ uint16, v uint32) Attr {
	return Attr{Type: typ, Data: binary.BigEndian.AppendUint32(nil, v)}
}

// CompatRequest asks the nft_compat subsystem whether an xtables match or
// target exists at a given revision. It mirrors the query iptables-nft
// sends when negotiating extension revisions.
type CompatRequest struct {
	Name     string
	Revision uint32
	Target   bool
	Seq      uint32
}

// Attrs returns the request attributes in wire order.
func (r CompatRequest) Attrs() []Attr {
	var kind uint32
	if r.Target {
		kind = 1
	}
	return []Attr{
		StringAttr(nftaCompatName, r.Name),
		Uint32Attr(nftaCompatRev, r.Revision),
		Uint32Attr(nftaCompatType, kind),
	}
}

// MarshalBinary encodes the full netlink message.
func (r CompatRequest) MarshalBinary() ([]byte, error) {
	if r.Name == "" {
		return nil, errors.New("nfprobe: compat request needs a name")
	}

	attrs := r.Attrs()
	size := HeaderLen + nfgenLen
	for _, a := range attrs {
		size += align(a.Len())
	}

	b := make([]byte, 0, size)
	b = Header{
		Len:   uint32(size),
		Type:  nfnlSubsysNFTCompat<<8 | nfnlMsgCompatGet,
		Flags: nlmFRequest | nlmFAck,
		Seq:   r.Seq,
	}.AppendBinary(b)

	// nfgenmsg: family, version, resource id (big endian).
	b = append(b, familyIPv4, nfnetlinkV0)
	b = binary.BigEndian.AppendUint16(b, 0)

	for _, a := range attrs {
		b = a.AppendBinary(b)
	}
	return b, nil
}

// Reply is the first message of a kernel answer.
type Reply struct {
	Header Header
	// Code is the raw nlmsgerr error field: zero for an acknowledgement,
	// a negated errno otherwise. Only set when IsError reports true.
	Code int32
}

// IsError reports whether the reply is an NLMSG_ERROR frame.
func (r Reply) IsError() bool { return r.Header.Type == nlmsgError }

// Errno returns the positive errno carried by an error frame.
func (r Reply) Errno() int32 { return -r.Code }

// ParseReply decodes a reply datagram.
func ParseReply(b []byte) (Reply, error) {
	h, err := parseHeader(b)
	if err != nil {
		return Reply{}, err
	}
	r := Reply{Header: h}
	if !r.IsError() {
		return r, nil
	}
	if len(b) < HeaderLen+errCodeLen {
		return Reply{}, fmt.Errorf("%w: error frame of %d bytes", ErrShortMessage, len(b))
	}
	r.Code = int32(binary.NativeEndian.Uint32(b[HeaderLen : HeaderLen+errCodeLen]))
	return r, nil
}
