package event

// Kind is the protocol code for an event's category, partitioning events by
// persistence policy.
type Kind uint32

const (
	KindMetadata    Kind = 0
	KindContact     Kind = 3
	ephemeralLow    Kind = 20000
	ephemeralHigh   Kind = 30000
	replaceableLow  Kind = 10000
	replaceableHigh Kind = 20000
)

// IsEphemeral reports whether events of this kind are broadcast only, never
// stored, never replayed.
func (k Kind) IsEphemeral() bool { return k >= ephemeralLow && k < ephemeralHigh }

// IsReplaceable reports whether only the latest event per (author, kind)
// is observable for this kind (kind 0, kind 3, and 10000..19999).
func (k Kind) IsReplaceable() bool {
	return k == KindMetadata || k == KindContact || (k >= replaceableLow && k < replaceableHigh)
}

// IsMetadata reports whether this is the profile-metadata kind, which is
// additionally forwarded to the identity verifier.
func (k Kind) IsMetadata() bool { return k == KindMetadata }

// IsRegular reports whether this kind is persisted under ordinary
// duplicate-by-id rules (neither ephemeral nor replaceable).
func (k Kind) IsRegular() bool { return !k.IsEphemeral() && !k.IsReplaceable() }
