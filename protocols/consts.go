package protocols

// Ethernet types.
const (
	EtherTypeIPv4  = 0x0800
	EtherTypeARP   = 0x0806
	EtherTypeDot1Q = 0x8100
)

// IP protocol numbers.
const (
	IPProtoICMP = 1
	IPProtoTCP  = 6
	IPProtoUDP  = 17
)

// IPProtoNames names the IP protocol numbers for display.
var IPProtoNames = map[uint64]string{
	0:   "ip",
	1:   "icmp",
	2:   "igmp",
	3:   "ggp",
	4:   "ipencap",
	5:   "st",
	6:   "tcp",
	8:   "egp",
	9:   "igp",
	12:  "pup",
	17:  "udp",
	20:  "hmp",
	22:  "xns-idp",
	27:  "rdp",
	29:  "iso-tp4",
	36:  "xtp",
	37:  "ddp",
	38:  "idpr-cmtp",
	41:  "ipv6",
	43:  "ipv6-route",
	44:  "ipv6-frag",
	45:  "idrp",
	46:  "rsvp",
	47:  "gre",
	50:  "esp",
	51:  "ah",
	57:  "skip",
	58:  "ipv6-icmp",
	59:  "ipv6-nonxt",
	60:  "ipv6-opts",
	73:  "rspf",
	81:  "vmtp",
	88:  "eigrp",
	89:  "ospf",
	93:  "ax.25",
	94:  "ipip",
	97:  "etherip",
	98:  "encap",
	103: "pim",
	108: "ipcomp",
	112: "vrrp",
	115: "l2tp",
	124: "isis",
	132: "sctp",
	133: "fc",
}

// ICMP message types.
const (
	ICMPEchoReply   = 0
	ICMPEchoRequest = 8
)

// ICMPTypeNames names the ICMP message types for display.
var ICMPTypeNames = map[uint64]string{
	0:  "echo-reply",
	3:  "dest-unreach",
	4:  "source-quench",
	5:  "redirect",
	8:  "echo-request",
	9:  "router-advertisement",
	10: "router-solicitation",
	11: "time-exceeded",
	12: "parameter-problem",
	13: "timestamp-request",
	14: "timestamp-reply",
	15: "information-request",
	16: "information-response",
	17: "address-mask-request",
	18: "address-mask-reply",
}

// ARPOpNames names the ARP operations for display.
var ARPOpNames = map[uint64]string{
	1: "who-has",
	2: "is-at",
	3: "RARP-req",
	4: "RARP-rep",
	5: "Dyn-RARP-req",
	6: "Dyn-RAR-rep",
	7: "Dyn-RARP-err",
	8: "InARP-req",
	9: "InARP-rep",
}

// TCPFlagNames names TCP flag bits, least significant first.
var TCPFlagNames = []string{"F", "S", "R", "P", "A", "U", "E", "C"}

// IPFlagNames names the 3-bit IPv4 flags field, least significant first.
var IPFlagNames = []string{"MF", "DF", "evil"}

// BSDLoopbackIPv4 is the address family carried by BSD loopback headers
// for IPv4.
const BSDLoopbackIPv4 = 2

// Capture link types (pcap DLT values).
const (
	LinkTypeNull        = 0
	LinkTypeEthernet    = 1
	LinkTypeRawBSD      = 12
	LinkTypeRaw         = 101
	LinkTypeLoop        = 108
	LinkTypePrismHeader = 119
)
