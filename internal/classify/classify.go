// Package classify maps an observed flow to a well-known local protocol
// tag. It is a pure function with no state and never fails, matching
// spec.md §4.2.
package classify

import "github.com/netsentinel/agent/internal/types"

// Tag is a well-known local-network protocol label.
type Tag string

const (
	TagMDNS     Tag = "MDNS"
	TagLLMNR    Tag = "LLMNR"
	TagSSDP     Tag = "SSDP"
	TagNBNS     Tag = "NBNS"
	TagNBDGM    Tag = "NB-DGM"
	TagNBSSN    Tag = "NB-SSN"
	TagDHCP     Tag = "DHCP"
	TagDNS      Tag = "DNS"
	TagSMB      Tag = "SMB"
	TagRDP      Tag = "RDP"
	TagLDAP     Tag = "LDAP"
	TagLDAPS    Tag = "LDAPS"
	TagKerberos Tag = "Kerberos"
	TagWINS     Tag = "WINS"
)

type multicastRule struct {
	tag   Tag
	port  uint16
	group []string
}

var multicastRules = []multicastRule{
	{TagMDNS, 5353, []string{"224.0.0.251", "ff02::fb"}},
	{TagLLMNR, 5355, []string{"224.0.0.252", "ff02::1:3"}},
	{TagSSDP, 1900, []string{"239.255.255.250", "ff02::c"}},
}

type singlePortRule struct {
	tag  Tag
	port uint16
}

// singlePortRules match on either side of the flow (src or dst) per
// spec.md §4.2 ("single-port protocols ... match if either port side
// matches").
var singlePortRules = []singlePortRule{
	{TagNBNS, 137},
	{TagNBDGM, 138},
	{TagNBSSN, 139},
	{TagDHCP, 67},
	{TagDHCP, 68},
	{TagDNS, 53},
	{TagSMB, 445},
	{TagRDP, 3389},
	{TagLDAP, 389},
	{TagLDAPS, 636},
	{TagKerberos, 88},
	{TagWINS, 42},
}

// Classify returns the well-known protocol tag for a flow, if any.
func Classify(f types.FlowEvent) (Tag, bool) {
	for _, r := range multicastRules {
		if f.SrcPort != r.port && f.DstPort != r.port {
			continue
		}
		for _, g := range r.group {
			if f.DstIP == g {
				return r.tag, true
			}
		}
	}

	for _, r := range singlePortRules {
		if f.SrcPort == r.port || f.DstPort == r.port {
			return r.tag, true
		}
	}

	return "", false
}
