package types

// Code identifies the reason an operation was rejected or failed. The API
// layer maps codes to transport-level statuses; the core only produces them.
type Code int

const (
	Success Code = iota
	InvalidInput
	VlanIDInUse
	NoAvailableVlan
	SegmentationIDNotAllowed
	SegmentationIDOutOfRange
	ProviderAttributesIncomplete
	NetworkTypeNotSupported
	LogicalSwitchNotFound
	LogicalSwitchInUse
	TransportZoneNotFound
	TransportZoneTypeMismatch
	EnsDisabled
	EnsUnsupportedOption
	QosNotAllowedHere
	PortSecurityAndIPRequired
	AddressPairRequiresPortSecurity
	TrustedPortSecurityConflict
	DirectVnicPortSecurity
	ImmutableDeviceOwner
	LoadBalancerPortConstraint
	AdminStateNotSupported
	SnatDisableWithFloatingIPs
	VlanRequiresExternalGateway
	MultipleDhcpSubnetsNotAllowed
	DhcpNotSupportedOnNetwork
	BackendUnavailable
	InternalInconsistency
)

// nolint:gocyclo
func (c Code) String() string {
	switch c {
	case Success:
		return "Success"
	case InvalidInput:
		return "InvalidInput"
	case VlanIDInUse:
		return "VlanIDInUse"
	case NoAvailableVlan:
		return "NoAvailableVlan"
	case SegmentationIDNotAllowed:
		return "SegmentationIDNotAllowed"
	case SegmentationIDOutOfRange:
		return "SegmentationIDOutOfRange"
	case ProviderAttributesIncomplete:
		return "ProviderAttributesIncomplete"
	case NetworkTypeNotSupported:
		return "NetworkTypeNotSupported"
	case LogicalSwitchNotFound:
		return "LogicalSwitchNotFound"
	case LogicalSwitchInUse:
		return "LogicalSwitchInUse"
	case TransportZoneNotFound:
		return "TransportZoneNotFound"
	case TransportZoneTypeMismatch:
		return "TransportZoneTypeMismatch"
	case EnsDisabled:
		return "EnsDisabled"
	case EnsUnsupportedOption:
		return "EnsUnsupportedOption"
	case QosNotAllowedHere:
		return "QosNotAllowedHere"
	case PortSecurityAndIPRequired:
		return "PortSecurityAndIPRequired"
	case AddressPairRequiresPortSecurity:
		return "AddressPairRequiresPortSecurity"
	case TrustedPortSecurityConflict:
		return "TrustedPortSecurityConflict"
	case DirectVnicPortSecurity:
		return "DirectVnicPortSecurity"
	case ImmutableDeviceOwner:
		return "ImmutableDeviceOwner"
	case LoadBalancerPortConstraint:
		return "LoadBalancerPortConstraint"
	case AdminStateNotSupported:
		return "AdminStateNotSupported"
	case SnatDisableWithFloatingIPs:
		return "SnatDisableWithFloatingIPs"
	case VlanRequiresExternalGateway:
		return "VlanRequiresExternalGateway"
	case MultipleDhcpSubnetsNotAllowed:
		return "MultipleDhcpSubnetsNotAllowed"
	case DhcpNotSupportedOnNetwork:
		return "DhcpNotSupportedOnNetwork"
	case BackendUnavailable:
		return "BackendUnavailable"
	case InternalInconsistency:
		return "InternalInconsistency"
	default:
		return "UnknownError"
	}
}

// Kind is the coarse error classification the propagation policy is written
// against. Validation errors are never retried; backend errors are
// compensated and re-raised by the saga paths.
type Kind int

const (
	KindSuccess Kind = iota
	KindValidation
	KindExhausted
	KindConflict
	KindBackendUnavailable
	KindInternalInconsistency
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "Success"
	case KindValidation:
		return "Validation"
	case KindExhausted:
		return "Exhausted"
	case KindConflict:
		return "Conflict"
	case KindBackendUnavailable:
		return "BackendUnavailable"
	case KindInternalInconsistency:
		return "InternalInconsistency"
	default:
		return "Unknown"
	}
}

// Kind maps a code to its classification.
func (c Code) Kind() Kind {
	switch c {
	case Success:
		return KindSuccess
	case NoAvailableVlan:
		return KindExhausted
	case VlanIDInUse, LogicalSwitchInUse:
		return KindConflict
	case BackendUnavailable:
		return KindBackendUnavailable
	case InternalInconsistency:
		return KindInternalInconsistency
	default:
		return KindValidation
	}
}
