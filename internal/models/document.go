package models

import (
	"time"
)

// Document is a named, revisioned configuration record. Documents are
// grouped into logical stores (Settings, Outputs, Encoders, Providers, and
// the per-pipeline singleton stores); within a store the DocID is either a
// fixed name for singleton documents or a generated unique id for
// collection members.
//
// Revision is an opaque token reissued by the store on every successful
// commit and required on every subsequent write to that id. It is never
// exposed to GUI or native-engine collaborators.
type Document struct {
	Store     string    `gorm:"primaryKey;size:64;not null" json:"store"`
	DocID     string    `gorm:"primaryKey;size:128;not null;column:doc_id" json:"doc_id"`
	Revision  string    `gorm:"size:26;not null" json:"-"`
	Content   []byte    `gorm:"not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name for GORM.
func (Document) TableName() string {
	return "documents"
}

// Well-known store names. Each corresponds to one logical document store
// under the application data directory.
const (
	StoreSettings        = "Settings"
	StoreOutputs         = "Outputs"
	StoreVideoEncoders   = "VideoEncoders"
	StoreAudioEncoders   = "AudioEncoders"
	StoreProviders       = "Providers"
	StoreRtmpPipeline    = "RtmpOutputSettings"
	StoreRecordingOutput = "RecOutputSettings"
)
