// Package plist implements RTPS ParameterList encoding/decoding
// (spec.md §4.1 "Parameter list encoding").
package plist

// PID identifies a parameter's semantic type within a ParameterList.
type PID uint16

// PIDSentinel terminates a ParameterList (PID_SENTINEL).
const PIDSentinel PID = 0x0001

// QoS and identity PIDs enumerated by spec.md §4.1.
const (
	PIDPad                         PID = 0x0000
	PIDParticipantLeaseDuration    PID = 0x0002
	PIDTopicName                   PID = 0x0005
	PIDOwnershipStrength           PID = 0x0006
	PIDTypeName                    PID = 0x0007
	PIDProtocolVersion             PID = 0x0015
	PIDVendorID                    PID = 0x0016
	PIDReliability                 PID = 0x001a
	PIDLiveliness                  PID = 0x001b
	PIDDurability                  PID = 0x001d
	PIDDurabilityService           PID = 0x001e
	PIDOwnership                   PID = 0x001f
	PIDPresentation                PID = 0x0021
	PIDDeadline                    PID = 0x0023
	PIDLatencyBudget               PID = 0x0027
	PIDPartition                   PID = 0x0029
	PIDLifespan                    PID = 0x002b
	PIDUserData                    PID = 0x002c
	PIDGroupData                   PID = 0x002d
	PIDTopicData                   PID = 0x002e
	PIDUnicastLocator              PID = 0x002f
	PIDMulticastLocator            PID = 0x0030
	PIDDefaultUnicastLocator       PID = 0x0031
	PIDMetatrafficUnicastLocator   PID = 0x0032
	PIDMetatrafficMulticastLocator PID = 0x0033
	PIDHistory                     PID = 0x0040
	PIDResourceLimits              PID = 0x0041
	PIDExpectsInlineQoS            PID = 0x0043
	PIDDefaultMulticastLocator     PID = 0x0048
	PIDBuiltinEndpointSet          PID = 0x0058
	PIDProperties                  PID = 0x0059
	PIDEndpointGUID                PID = 0x005a
	PIDEntityName                  PID = 0x0062
	PIDParticipantGUID             PID = 0x0050
	PIDKeyHash                     PID = 0x0070
	PIDStatusInfo                  PID = 0x0071
	PIDTypeObjectV1                PID = 0x0072
	PIDTypeIDV1                    PID = 0x0075
	// Vendor-specific range (0x8000+); not part of the OMG standard
	// parameter set but interoperable within this implementation.
	PIDPersistenceGUID     PID = 0x8002
	PIDDisablePositiveACKs PID = 0x8005
)
