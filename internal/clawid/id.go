// Package clawid defines the opaque identifier and region types shared
// across the gateway core.
package clawid

import (
	"strings"

	"github.com/google/uuid"
)

// NodeId uniquely identifies a registered node. It is opaque, stable,
// comparable, and hashable.
type NodeId uuid.UUID

// NewNodeId generates a new random NodeId using the OS CSPRNG.
func NewNodeId() NodeId {
	return NodeId(uuid.New())
}

// ParseNodeId parses a lowercase-hex UUID string into a NodeId.
func ParseNodeId(s string) (NodeId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NodeId{}, err
	}
	return NodeId(u), nil
}

func (id NodeId) String() string {
	return uuid.UUID(id).String()
}

func (id NodeId) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *NodeId) UnmarshalText(data []byte) error {
	parsed, err := ParseNodeId(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// WorkloadId uniquely identifies a tracked workload.
type WorkloadId uuid.UUID

// NewWorkloadId generates a new random WorkloadId using the OS CSPRNG.
func NewWorkloadId() WorkloadId {
	return WorkloadId(uuid.New())
}

// ParseWorkloadId parses a lowercase-hex UUID string into a WorkloadId.
func ParseWorkloadId(s string) (WorkloadId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return WorkloadId{}, err
	}
	return WorkloadId(u), nil
}

func (id WorkloadId) String() string {
	return uuid.UUID(id).String()
}

func (id WorkloadId) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *WorkloadId) UnmarshalText(data []byte) error {
	parsed, err := ParseWorkloadId(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Region is a small closed enumeration of deployment regions, including
// reserved tags used by non-node participants.
type Region string

const (
	RegionUSWest  Region = "us-west"
	RegionUSEast  Region = "us-east"
	RegionEUWest  Region = "eu-west"
	RegionAsia    Region = "asia"
	RegionMolt    Region = "molt"
	RegionGateway Region = "gateway"
)

// ParseRegion accepts common spellings (hyphen, underscore, bare) of a
// region name, case-insensitively, defaulting to RegionUSWest when the
// input does not match any known region — permissive parsing for
// node-side mesh tooling that may format region tags inconsistently.
func ParseRegion(s string) Region {
	normalized := strings.ToLower(strings.ReplaceAll(s, "_", "-"))
	normalized = strings.ReplaceAll(normalized, " ", "-")
	switch normalized {
	case "us-west", "uswest":
		return RegionUSWest
	case "us-east", "useast":
		return RegionUSEast
	case "eu-west", "euwest":
		return RegionEUWest
	case "asia":
		return RegionAsia
	case "molt":
		return RegionMolt
	case "gateway":
		return RegionGateway
	default:
		return RegionUSWest
	}
}

// AllRegions lists the regions that own mesh IP pools (reserved tags like
// Molt and Gateway do not participate in mesh allocation).
func AllRegions() []Region {
	return []Region{RegionUSWest, RegionUSEast, RegionEUWest, RegionAsia}
}
