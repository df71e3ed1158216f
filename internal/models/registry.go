package models

// RegistryEntry is the persisted shape shared by encoder, provider, and
// output registry members. Settings is an opaque key-value snapshot of the
// native object's current settings; the core never interprets it, only the
// native engine does.
type RegistryEntry struct {
	UniqueID string         `json:"uniqueId"`
	Type     string         `json:"type"`
	Settings map[string]any `json:"settings,omitempty"`

	// IsPersistent entries survive restarts; transient entries exist only
	// for the process lifetime and are never written to storage. The flag
	// itself is persisted so reloads keep it true.
	IsPersistent bool `json:"isPersistent"`
}

// Entry returns the embedded registry core. Documents expose it so generic
// registry code can read and fill the shared fields.
func (e *RegistryEntry) Entry() *RegistryEntry {
	return e
}

// EncoderDocument is the persisted record for one encoder registry entry.
type EncoderDocument struct {
	RegistryEntry
	IsAudio bool `json:"isAudio"`
}

// ProviderDocument is the persisted record for one provider (streaming
// service) registry entry.
type ProviderDocument struct {
	RegistryEntry
}

// OutputDocument is the persisted record for one output registry entry.
// Encoder and provider references are weak (ids, not ownership): removing
// an output never cascades to the referenced entries.
type OutputDocument struct {
	RegistryEntry
	AudioEncoderID string `json:"audioEncoderId,omitempty"`
	VideoEncoderID string `json:"videoEncoderId,omitempty"`
	ProviderID     string `json:"providerId,omitempty"`
}
